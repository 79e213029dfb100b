package modem

import (
	"bytes"
	"strings"
)

const (
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1A"
	Esc    = "\x1B"

	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	CmdAt          = "AT"
	CmdEchoOff     = "ATE0"
	CmdSetTextMode = "AT+CMGF=1"
	CmdSendPrefix  = "AT+CMGS="

	RespSent = "+CMGS:"

	UrcNewMsg        = "+CMTI:"
	UrcMessage       = "+CMT:"
	UrcMessageReport = "+CDSI:"
	UrcCall          = "RING"
)

// ResponseType classifies one line of modem output.
type ResponseType int

const (
	// TypeFinal ends a command: OK, ERROR, +CMS ERROR: ..., NO CARRIER.
	TypeFinal ResponseType = iota
	// TypeURC is an unsolicited notification that can arrive at any time.
	TypeURC
	// TypeData is intermediate output such as "+CMGS: 12".
	TypeData
	// TypePrompt is the "> " text-entry prompt after AT+CMGS.
	TypePrompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

var finalCodes = map[string]bool{
	OK:         true,
	ERROR:      true,
	NoCarrier:  true,
	NoDialtone: true,
	Busy:       true,
	NoAnswer:   true,
}

var urcPrefixes = []string{UrcNewMsg, UrcMessage, UrcMessageReport, UrcCall}

func Classify(line string) ResponseType {
	if line == Prompt || line == strings.TrimSpace(Prompt) {
		return TypePrompt
	}
	if finalCodes[line] || strings.HasPrefix(line, CmeError) || strings.HasPrefix(line, CmsError) {
		return TypeFinal
	}
	for _, p := range urcPrefixes {
		if strings.HasPrefix(line, p) {
			return TypeURC
		}
	}
	return TypeData
}

// splitResponses is a bufio.SplitFunc for modem output. Lines end in CR,
// LF or CR LF; blank lines are skipped. The text-entry prompt has no line
// ending, so "> " at the start of a line is its own token.
func splitResponses(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	rest := data[start:]
	if len(rest) == 0 {
		return start, nil, nil
	}
	if bytes.HasPrefix(rest, []byte(Prompt)) {
		return start + len(Prompt), rest[:len(Prompt)], nil
	}
	if i := bytes.IndexAny(rest, "\r\n"); i >= 0 {
		return start + i + 1, rest[:i], nil
	}
	if atEOF {
		return len(data), rest, nil
	}
	return start, nil, nil
}

// tokenizer applies splitResponses to bytes as they trickle in.
type tokenizer struct {
	pending []byte
}

func (t *tokenizer) feed(p []byte) { t.pending = append(t.pending, p...) }

func (t *tokenizer) next() (string, bool) {
	for len(t.pending) > 0 {
		adv, tok, _ := splitResponses(t.pending, false)
		if adv == 0 {
			return "", false
		}
		t.pending = t.pending[adv:]
		if tok != nil {
			return string(tok), true
		}
	}
	return "", false
}

func (t *tokenizer) reset() { t.pending = t.pending[:0] }
