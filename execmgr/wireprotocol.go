package execmgr

import "strings"

// Request framing for the embedded REPL helper's loopback protocol:
// "<request><US><args-joined-by-PU1>". US (U+001F) and the PU1 control
// character (U+0091, PRIVATE USE ONE) were picked because neither can appear in a completion
// or history string produced by the interactive languages this drives.
const (
	unitSeparator = "\x1f"
	pu1Separator  = "\u0091"
)

func encodeRequest(request string, args ...string) string {
	return request + unitSeparator + strings.Join(args, pu1Separator)
}

func decodeArgs(line string) []string {
	if line == "" {
		return nil
	}
	return strings.Split(line, pu1Separator)
}
