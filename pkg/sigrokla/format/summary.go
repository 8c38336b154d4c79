package format

import (
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

// Default caps applied by Summary when the caller passes 0.
const (
	DefaultMaxTransactions = 500
	DefaultMaxUARTBytes    = 2000
	DefaultMaxRawLines     = 200
)

// Summary renders a decoded annotation stream as a compact transaction
// view. Dispatch is a closed set keyed by decoder name; every protocol
// without a dedicated formatter gets the numbered fallback. maxItems caps
// transactions (bytes for UART); 0 applies the protocol default.
func Summary(anns []decode.Annotation, protocol string, maxItems int) string {
	switch protocol {
	case "i2c":
		return I2C(anns, orDefault(maxItems, DefaultMaxTransactions))
	case "spi":
		return SPI(anns, orDefault(maxItems, DefaultMaxTransactions))
	case "uart":
		return UART(anns, orDefault(maxItems, DefaultMaxUARTBytes))
	case "can":
		return CAN(anns, orDefault(maxItems, DefaultMaxTransactions))
	case "usb_packet":
		return USB(anns, orDefault(maxItems, DefaultMaxTransactions))
	default:
		return Fallback(anns, orDefault(maxItems, DefaultMaxRawLines))
	}
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
