package format

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

var hexByteRE = regexp.MustCompile(`^[0-9A-Fa-f]{2}$`)

// SPI groups the annotation stream into clock-framed transfers. A
// transfer annotation (emitted by the decoder at the chip-select
// boundary) closes the current transfer; MOSI and MISO bytes inside it
// are paired by position since both directions share the clock:
//
//	#001  MOSI>[A0 00 00] MISO<[FF 3C 80]
//
// Streams with no transfer annotations at all (chip select not captured)
// collapse into a single transfer at end of stream.
func SPI(anns []decode.Annotation, maxTransfers int) string {
	if len(anns) == 0 {
		return "No SPI data decoded."
	}

	var transfers []string
	var mosi, miso []string

	flush := func() {
		if len(mosi) == 0 && len(miso) == 0 {
			return
		}
		var parts []string
		if len(mosi) > 0 {
			parts = append(parts, fmt.Sprintf("MOSI>[%s]", strings.Join(mosi, " ")))
		}
		if len(miso) > 0 {
			parts = append(parts, fmt.Sprintf("MISO<[%s]", strings.Join(miso, " ")))
		}
		transfers = append(transfers, strings.Join(parts, " "))
		mosi, miso = nil, nil
	}

	for _, a := range anns {
		text := a.Text
		switch {
		case a.Class == "mosi-transfer" || a.Class == "miso-transfer",
			strings.HasPrefix(text, "MOSI transfer"), strings.HasPrefix(text, "MISO transfer"):
			flush()
		case a.Class == "miso-data" || strings.HasPrefix(text, "MISO data"):
			miso = append(miso, strings.ToUpper(valueAfterColon(text)))
		case a.Class == "mosi-data" || strings.HasPrefix(text, "MOSI data"):
			mosi = append(mosi, strings.ToUpper(valueAfterColon(text)))
		case hexByteRE.MatchString(text):
			// Bare hex values come from mosi-data annotations in some
			// decoder versions.
			mosi = append(mosi, strings.ToUpper(text))
		}
	}
	flush()

	var sb strings.Builder
	fmt.Fprintf(&sb, "SPI: %d transfers\n\n", len(transfers))

	shown, omitted := TruncateLines(transfers, maxTransfers)
	for i, txn := range shown {
		fmt.Fprintf(&sb, "#%03d  %s\n", i+1, txn)
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, "\n... (%d more transfers)\n", omitted)
	}
	return strings.TrimRight(sb.String(), "\n")
}
