package execmgr

// Stream identifies which pipe a relayed message originated from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Message is one line relayed from a managed subprocess's stdout or stderr.
type Message struct {
	Stream Stream
	Data   string
}
