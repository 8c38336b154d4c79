package decode

// summaryFilters maps a decoder name to the annotation-class filter that
// strips sample-level bit annotations from its output. Applied for
// detail=summary when the caller gives no explicit filter, so the
// transaction formatters see a stable stream.
var summaryFilters = map[string]string{
	"i2c":        "i2c=start:repeat-start:stop:ack:nack:address-read:address-write:data-read:data-write",
	"spi":        "spi=mosi-data:miso-data:mosi-transfer:miso-transfer",
	"uart":       "uart=rx-data:tx-data",
	"can":        "can=sof:eof:id:ext-id:full-id:ide:rtr:dlc:data:warnings",
	"usb_packet": "usb_packet",
	"dcf77":      "dcf77=minute:hour:day:day-of-week:month:year",
	"am230x":     "am230x=humidity:temperature:checksum",
	"mdio":       "mdio=decode",
	"onewire_network": "onewire_network",
	"sdcard_sd": "sdcard_sd=cmd0:cmd2:cmd3:cmd6:cmd7:cmd8:cmd9:cmd10:cmd11:cmd12:cmd13:cmd16:cmd17:cmd18:cmd23:cmd24:cmd25:cmd41:cmd55:decoded-fields",
	"spiflash":  "spiflash",
	"avr_isp":   "avr_isp",
	"z80":       "z80=memrd:memwr:iord:iowr:instr",
}

// SummaryFilter returns the default annotation filter for summary-detail
// decoding, or "" when the decoder has no curated filter.
func SummaryFilter(decoder string) string {
	return summaryFilters[decoder]
}
