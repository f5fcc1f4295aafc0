package gadget

import "testing"

func TestBootKeyboardReportDescriptor(t *testing.T) {
	desc := BootKeyboardReportDescriptor

	if len(desc) != 63 {
		t.Errorf("expected 63 bytes, got %d", len(desc))
	}
	// Usage Page (Generic Desktop), Usage (Keyboard).
	if desc[0] != 0x05 || desc[1] != 0x01 || desc[2] != 0x09 || desc[3] != 0x06 {
		t.Errorf("unexpected descriptor header: % x", desc[:4])
	}
	// Must close its application collection.
	if desc[len(desc)-1] != 0xc0 {
		t.Errorf("descriptor does not end the collection: %#x", desc[len(desc)-1])
	}
}
