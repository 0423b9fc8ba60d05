package display

import "testing"

type fakeTransport struct {
	sends int
}

func (f *fakeTransport) Send(b []byte) error {
	f.sends++
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func newTestDevice(t *testing.T) (*Device, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	d, err := newDevice(tr)
	if err != nil {
		t.Fatalf("newDevice: %v", err)
	}
	tr.sends = 0 // ignore init traffic
	return d, tr
}

func TestPrintMatchesCache(t *testing.T) {
	d, _ := newTestDevice(t)
	if err := d.PrintAt(0, 0, "Hello, World!"); err != nil {
		t.Fatalf("Print: %v", err)
	}
	snap := d.Snapshot()
	got := string(snap[0][:13])
	if got != "Hello, World!" {
		t.Fatalf("expected cache to contain printed text, got %q", got)
	}
}

func TestPrintSkipsUnchangedColumns(t *testing.T) {
	d, tr := newTestDevice(t)
	if err := d.PrintAt(0, 0, "12345678901234"); err != nil {
		t.Fatalf("Print: %v", err)
	}
	firstSends := tr.sends

	tr.sends = 0
	if err := d.PrintAt(0, 0, "12345678901234"); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if tr.sends != 0 {
		t.Fatalf("expected zero I2C writes when reprinting identical content, got %d (first print used %d)", tr.sends, firstSends)
	}
}

func TestPrintOnlyRewritesChangedTail(t *testing.T) {
	d, tr := newTestDevice(t)
	if err := d.PrintAt(0, 0, "AAAAAAAAAA"); err != nil {
		t.Fatalf("Print: %v", err)
	}

	tr.sends = 0
	if err := d.PrintAt(0, 0, "AAAAAXXXXX"); err != nil {
		t.Fatalf("Print: %v", err)
	}
	snap := d.Snapshot()
	got := string(snap[0][:10])
	if got != "AAAAAXXXXX" {
		t.Fatalf("expected cache updated to new content, got %q", got)
	}
	// One Position() command plus 5 changed bytes. Every byte is two
	// nibbles and every nibble is two Sends (enable high, enable low), so
	// that is 6*4 = 24 Sends — well under the 44 a naive rewrite of all 10
	// columns plus its Position() would cost.
	if tr.sends == 0 || tr.sends > 24 {
		t.Fatalf("expected a small number of writes for a partial diff, got %d", tr.sends)
	}
}

func TestClearResetsCache(t *testing.T) {
	d, _ := newTestDevice(t)
	if err := d.PrintAt(1, 3, "hi"); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if err := d.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, row := range d.Snapshot() {
		for _, c := range row {
			if c != ' ' {
				t.Fatalf("expected all-space cache after Clear, found %q", c)
			}
		}
	}
}
