package blockdevice

import "testing"

// fakeSPI/fakeCard model an SD card entirely in memory, grounded on the
// teacher's own host-test double pattern (BytesBlocks in
// filesystem/fat/engine/fat_test.go): enough protocol state to drive
// SDDevice's init handshake end to end without real hardware. The model
// is a byte queue: each recognized 6-byte command packet enqueues its R1
// (plus any trailing payload bytes); every other Tx call pops bytes off
// that queue one at a time, the way a real card streams its response
// after the command packet's CS-held window.
type fakeSPI struct {
	cs   *fakeCS
	card *fakeCard
	baud uint32
}

type fakeCS struct{ asserted bool }

func (c *fakeCS) Set(asserted bool) { c.asserted = asserted }

type fakeCard struct {
	queue    []byte
	idle     bool
	appCmd   bool
	hcs      bool
	csdBytes [16]byte
}

// newFakeCard builds a card whose CSD reports the given sector count
// using the CSD v1 (SDSC) encoding: sectors = (C_SIZE+1) << (C_SIZE_MULT+2+READ_BL_LEN-9).
func newFakeCard(sectors int64) *fakeCard {
	c := &fakeCard{idle: true}
	const readBlLen = 9 // 512-byte blocks
	const cSizeMult = 0
	cSize := sectors>>(cSizeMult+2) - 1
	c.csdBytes[0] = 0 << 6 // CSD structure v1
	c.csdBytes[5] = readBlLen
	c.csdBytes[6] = byte(cSize >> 10 & 0x03)
	c.csdBytes[7] = byte(cSize >> 2)
	c.csdBytes[8] = byte(cSize<<6) | 0
	c.csdBytes[9] = byte(cSizeMult >> 1)
	c.csdBytes[10] = byte(cSizeMult<<7) & 0x80
	return c
}

func (s *fakeSPI) SetBaudRate(hz uint32) error { s.baud = hz; return nil }

func (s *fakeSPI) Tx(w, r []byte) error {
	if len(w) == 6 && w[0]&0xC0 == 0x40 {
		s.card.onCommand(w[0]&0x3F, uint32(w[1])<<24|uint32(w[2])<<16|uint32(w[3])<<8|uint32(w[4]))
		for i := range r {
			r[i] = 0xFF
		}
		return nil
	}
	for i := range r {
		if len(s.card.queue) > 0 {
			r[i] = s.card.queue[0]
			s.card.queue = s.card.queue[1:]
		} else {
			r[i] = 0xFF
		}
	}
	return nil
}

func (c *fakeCard) r1() byte {
	if c.idle {
		return 0x01
	}
	return 0x00
}

func (c *fakeCard) onCommand(cmd uint8, arg uint32) {
	switch cmd {
	case 0:
		c.idle = true
		c.queue = append(c.queue, 0x01)
	case 8:
		// Modeled as a v1 card: CMD8 is illegal, no R7 echo payload follows.
		c.queue = append(c.queue, c.r1()|0x04)
	case 55:
		c.appCmd = true
		c.queue = append(c.queue, c.r1())
	case 41:
		wasApp := c.appCmd
		c.appCmd = false
		if wasApp {
			c.idle = false
			c.hcs = arg&ocrHCS_CCS != 0
		}
		c.queue = append(c.queue, c.r1())
	case 58:
		ocr := uint32(ocr3_3V)
		if c.hcs {
			ocr |= ocrHCS_CCS
		}
		c.queue = append(c.queue, c.r1(), byte(ocr>>24), byte(ocr>>16), byte(ocr>>8), byte(ocr))
	case 16:
		c.queue = append(c.queue, c.r1())
	case 9:
		payload := append([]byte{c.r1(), tokenStartBlock}, c.csdBytes[:]...)
		payload = append(payload, 0, 0) // CRC trailer, unchecked since CRC disabled by default
		c.queue = append(c.queue, payload...)
	default:
		c.queue = append(c.queue, c.r1())
	}
}

func TestSDDevice_InitHandshake(t *testing.T) {
	const wantSectors = 8192
	card := newFakeCard(wantSectors)
	cs := &fakeCS{}
	bus := &fakeSPI{card: card, cs: cs}
	dev := NewSDDevice(SDConfig{Bus: bus, CS: cs})

	if err := dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !dev.IsInitialized() {
		t.Fatal("device reports not initialized after successful Init")
	}
	if dev.CardType() != CardV1 {
		t.Fatalf("CardType = %v, want CardV1", dev.CardType())
	}
	if got := dev.Size(); got != wantSectors*blockSizeHC {
		t.Fatalf("Size() = %d, want %d", got, wantSectors*blockSizeHC)
	}
}
