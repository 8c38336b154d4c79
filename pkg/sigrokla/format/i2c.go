package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

// i2cState accumulates one start/stop-delimited transaction. A repeated
// start keeps the transaction open and starts a new segment, so a
// register read shows as "W 0x59: [00] | R 0x59: [00]".
type i2cState struct {
	open       bool
	segments   []string
	dir        string
	addr       string
	data       []string
	annsInOpen int
}

func (st *i2cState) flushSegment() {
	if st.addr != "" {
		seg := fmt.Sprintf("%s 0x%s", st.dir, st.addr)
		if len(st.data) > 0 {
			seg += fmt.Sprintf(": [%s]", strings.Join(st.data, " "))
		}
		st.segments = append(st.segments, seg)
	}
	st.dir = ""
	st.addr = ""
	st.data = nil
}

func (st *i2cState) close() (string, bool) {
	st.flushSegment()
	st.open = false
	st.annsInOpen = 0
	if len(st.segments) == 0 {
		return "", false
	}
	txn := strings.Join(st.segments, " | ")
	st.segments = nil
	return txn, true
}

// I2C folds the annotation stream into start/stop-delimited transactions:
//
//	#001  W 0x59: [0B 00]
//	#002  W 0x59: [00] | R 0x59: [00]
//
// Orphaned stop markers and an unterminated trailing transaction are
// surfaced as trailing notes; they never abort formatting.
func I2C(anns []decode.Annotation, maxTransactions int) string {
	if len(anns) == 0 {
		return "No I2C data decoded."
	}

	var (
		transactions []string
		st           i2cState
		addrCounts   = map[string]int{}
		addrOrder    []string
		orphanStops  int
	)

	countAddr := func(addr string) {
		if addrCounts[addr] == 0 {
			addrOrder = append(addrOrder, addr)
		}
		addrCounts[addr]++
	}

	for _, a := range anns {
		text := a.Text
		if st.open {
			st.annsInOpen++
		}
		switch {
		case text == "Start":
			if st.open {
				// A start directly after another transaction acts as its
				// close; only sigrok's explicit "Start repeat" keeps the
				// transaction open.
				if txn, ok := st.close(); ok {
					transactions = append(transactions, txn)
				}
			}
			st.open = true
			st.annsInOpen = 1
		case text == "Start repeat":
			st.flushSegment()
		case text == "Stop":
			if !st.open {
				orphanStops++
				continue
			}
			if txn, ok := st.close(); ok {
				transactions = append(transactions, txn)
			}
		case text == "Write":
			st.dir = "W"
		case text == "Read":
			st.dir = "R"
		case strings.HasPrefix(text, "Address write: "):
			st.addr = valueAfterColon(text)
			if st.dir == "" {
				st.dir = "W"
			}
			countAddr(st.addr)
		case strings.HasPrefix(text, "Address read: "):
			st.addr = valueAfterColon(text)
			if st.dir == "" {
				st.dir = "R"
			}
			countAddr(st.addr)
		case strings.HasPrefix(text, "Data write: "):
			st.data = append(st.data, valueAfterColon(text))
		case strings.HasPrefix(text, "Data read: "):
			st.data = append(st.data, valueAfterColon(text))
		}
		// ACK/NACK carry no summary information.
	}

	unconsumed := 0
	if st.open {
		unconsumed = st.annsInOpen
	}

	var sb strings.Builder
	header := fmt.Sprintf("I2C: %d transactions", len(transactions))
	if summary := deviceSummary(addrCounts, addrOrder); summary != "" {
		header += ", devices: " + summary
	}
	sb.WriteString(header)
	sb.WriteString("\n\n")

	shown, omitted := TruncateLines(transactions, maxTransactions)
	for i, txn := range shown {
		fmt.Fprintf(&sb, "#%03d  %s\n", i+1, txn)
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, "\n... (%d more transactions)\n", omitted)
	}
	if orphanStops > 0 {
		fmt.Fprintf(&sb, "\nnote: %d orphaned stop marker(s) ignored\n", orphanStops)
	}
	if unconsumed > 0 {
		fmt.Fprintf(&sb, "\nnote: %d annotation(s) unconsumed at end of stream (unterminated transaction)\n", unconsumed)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// deviceSummary lists seen addresses, most frequent first, ties in
// first-seen order.
func deviceSummary(counts map[string]int, order []string) string {
	sorted := make([]string, len(order))
	copy(sorted, order)
	sort.SliceStable(sorted, func(i, j int) bool {
		return counts[sorted[i]] > counts[sorted[j]]
	})
	parts := make([]string, 0, len(sorted))
	for _, addr := range sorted {
		parts = append(parts, "0x"+addr)
	}
	return strings.Join(parts, ", ")
}
