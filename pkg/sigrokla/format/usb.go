package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

var (
	usbTokenRE     = regexp.MustCompile(`(?i)^(?:packet-)?(setup|in|out)\b`)
	usbAddrRE      = regexp.MustCompile(`(?i)ADDR\s*=?\s*(\d+)`)
	usbEPRE        = regexp.MustCompile(`(?i)EP\s*=?\s*(\d+)`)
	usbDataRE      = regexp.MustCompile(`(?i)^(?:packet-)?(data[01])\b`)
	usbHandshakeRE = regexp.MustCompile(`(?i)^(?:packet-)?(ack|nak|nyet|stall)\b`)
	usbBytesRE     = regexp.MustCompile(`\[([0-9A-Fa-f \t]*)\]`)
)

// usbTxn accumulates one token/data/handshake transaction.
type usbTxn struct {
	open      bool
	dir       string
	addr      string
	ep        string
	dataPID   string
	dataBytes string
	handshake string
}

func (t *usbTxn) render() string {
	parts := []string{t.dir}
	if t.addr != "" {
		parts = append(parts, "ADDR="+t.addr)
	}
	if t.ep != "" {
		parts = append(parts, "EP="+t.ep)
	}
	if t.dataPID != "" {
		parts = append(parts, fmt.Sprintf("%s=[%s]", t.dataPID, t.dataBytes))
	}
	if t.handshake != "" {
		parts = append(parts, t.handshake)
	}
	return strings.Join(parts, " ")
}

// tokenDirection labels the transaction from its token packet. Setup
// tokens are treated as control reads and labeled IN.
func tokenDirection(token string) string {
	if strings.EqualFold(token, "out") {
		return "OUT"
	}
	return "IN"
}

// USB groups usb_packet annotations into token-delimited transactions:
// the token packet opens one and carries ADDR/EP, a data packet attaches
// its payload, a handshake packet finishes it. The next token (or end of
// stream) emits:
//
//	#001  IN ADDR=2 EP=1 DATA0=[00 01 00 00] ACK
//
// Start-of-frame packets and anything else that is neither token, data
// nor handshake are skipped.
func USB(anns []decode.Annotation, maxTransactions int) string {
	if len(anns) == 0 {
		return "No USB data decoded."
	}

	var transactions []string
	var t usbTxn

	flush := func() {
		if t.open {
			transactions = append(transactions, t.render())
		}
		t = usbTxn{}
	}

	for _, a := range anns {
		text := strings.TrimSpace(a.Text)
		switch {
		case usbTokenRE.MatchString(text):
			flush()
			t.open = true
			t.dir = tokenDirection(usbTokenRE.FindStringSubmatch(text)[1])
			if m := usbAddrRE.FindStringSubmatch(text); m != nil {
				t.addr = m[1]
			}
			if m := usbEPRE.FindStringSubmatch(text); m != nil {
				t.ep = m[1]
			}
		case usbDataRE.MatchString(text):
			if !t.open {
				continue
			}
			t.dataPID = strings.ToUpper(usbDataRE.FindStringSubmatch(text)[1])
			if m := usbBytesRE.FindStringSubmatch(text); m != nil {
				t.dataBytes = strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
			}
		case usbHandshakeRE.MatchString(text):
			if !t.open {
				continue
			}
			t.handshake = strings.ToUpper(usbHandshakeRE.FindStringSubmatch(text)[1])
		}
	}
	flush()

	var sb strings.Builder
	fmt.Fprintf(&sb, "USB: %d transactions\n\n", len(transactions))

	shown, omitted := TruncateLines(transactions, maxTransactions)
	for i, txn := range shown {
		fmt.Fprintf(&sb, "#%03d  %s\n", i+1, txn)
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, "\n... (%d more transactions)\n", omitted)
	}
	return strings.TrimRight(sb.String(), "\n")
}
