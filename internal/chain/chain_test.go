package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func openTestChain(t *testing.T) *Chain {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "data", "chain.log"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return c
}

func aliceEntry() Entry {
	return Entry{
		Timestamp: "100",
		Event:     "SUCCESS",
		MagMeas:   "N/A",
		UltraMeas: "N/A",
		User:      "Alice",
		MAC:       "AA:BB:CC:DD:EE:FF",
	}
}

func appendN(t *testing.T, c *Chain, n int) []Block {
	t.Helper()
	blocks := make([]Block, 0, n)
	events := []string{"TAMPERING", "PRESENCE", "FAIL", "SUCCESS"}
	for i := 0; i < n; i++ {
		b, err := c.Append(Entry{
			Timestamp: strconv.Itoa(1000 + i),
			Event:     events[i%len(events)],
			MagMeas:   "0.123",
			UltraMeas: "0.456",
			User:      "User" + strconv.Itoa(i),
			MAC:       "AA:BB:CC:DD:EE:0" + strconv.Itoa(i%10),
		})
		if err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func rewriteLines(t *testing.T, path string, fn func(lines []string) []string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading chain: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	lines = fn(lines)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatalf("writing chain: %v", err)
	}
}

func TestOpen_CreatesEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chain.log")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("log not created: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("new log size = %d, want 0", info.Size())
	}
	if c.Path() != path {
		t.Errorf("Path() = %q, want %q", c.Path(), path)
	}
}

func TestOpen_KeepsExistingContent(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 2)

	reopened, err := Open(c.Path())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	n, err := reopened.Validate()
	if err != nil || n != 2 {
		t.Errorf("Validate() after reopen = (%d, %v), want (2, nil)", n, err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") expected error")
	}
}

func TestValidate_EmptyLog(t *testing.T) {
	c := openTestChain(t)
	n, err := c.Validate()
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Validate() count = %d, want 0", n)
	}
}

func TestAppend_FirstBlockStartsAtGenesis(t *testing.T) {
	c := openTestChain(t)
	b, err := c.Append(aliceEntry())
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if b.PrevHash != Genesis {
		t.Errorf("PrevHash = %q, want %q", b.PrevHash, Genesis)
	}
	want, _ := b.ComputeHash()
	if b.CurrHash != want {
		t.Errorf("CurrHash = %q, want %q", b.CurrHash, want)
	}
}

func TestAppend_RoundTrip(t *testing.T) {
	c := openTestChain(t)

	first, err := c.Append(aliceEntry())
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := c.Validate(); err != nil {
		t.Fatalf("Validate() after one block error = %v", err)
	}

	second, err := c.Append(Entry{
		Timestamp: "205",
		Event:     "TAMPERING",
		MagMeas:   "0.731",
		UltraMeas: "N/A",
		User:      "N/A",
		MAC:       "N/A",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	n, err := c.Validate()
	if err != nil {
		t.Fatalf("Validate() after two blocks error = %v", err)
	}
	if n != 2 {
		t.Errorf("Validate() count = %d, want 2", n)
	}

	canonical := `{"timestamp":"100","event":"SUCCESS","mag_meas":"N/A","ultra_meas":"N/A",` +
		`"user":"Alice","MAC":"AA:BB:CC:DD:EE:FF","prev_hash":"GENESIS"}`
	sum := sha256.Sum256([]byte(canonical))
	want := hex.EncodeToString(sum[:])

	if first.CurrHash != want {
		t.Errorf("first.CurrHash = %q, want %q", first.CurrHash, want)
	}
	if second.PrevHash != want {
		t.Errorf("second.PrevHash = %q, want %q", second.PrevHash, want)
	}
}

func TestBlock_CanonicalForm(t *testing.T) {
	b := Block{
		Timestamp: "1",
		Event:     "FAIL",
		MagMeas:   "<0.5>",
		UltraMeas: "a&b",
		User:      "Bob",
		MAC:       "11:22:33:44:55:66",
		PrevHash:  Genesis,
		CurrHash:  "ignored",
	}
	got, err := b.Canonical()
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}
	want := `{"timestamp":"1","event":"FAIL","mag_meas":"<0.5>","ultra_meas":"a&b",` +
		`"user":"Bob","MAC":"11:22:33:44:55:66","prev_hash":"GENESIS"}`
	if string(got) != want {
		t.Errorf("Canonical() =\n%s\nwant\n%s", got, want)
	}
}

func TestAppend_LinksEveryBlock(t *testing.T) {
	c := openTestChain(t)
	blocks := appendN(t, c, 6)

	for i := 1; i < len(blocks); i++ {
		prev := blocks[i-1]
		prev.CurrHash = ""
		want, err := prev.ComputeHash()
		if err != nil {
			t.Fatalf("ComputeHash() error = %v", err)
		}
		if blocks[i].PrevHash != want {
			t.Errorf("block %d PrevHash = %q, want %q", i, blocks[i].PrevHash, want)
		}
	}

	n, err := c.Validate()
	if err != nil || n != 6 {
		t.Errorf("Validate() = (%d, %v), want (6, nil)", n, err)
	}
}

func TestValidate_DetectsSingleFieldMutation(t *testing.T) {
	mutators := map[string]func(b *Block){
		"timestamp":  func(b *Block) { b.Timestamp = "9999" },
		"event":      func(b *Block) { b.Event = "SUCCESS!" },
		"mag_meas":   func(b *Block) { b.MagMeas = "9.999" },
		"ultra_meas": func(b *Block) { b.UltraMeas = "0.000" },
		"user":       func(b *Block) { b.User = "Mallory" },
		"MAC":        func(b *Block) { b.MAC = "00:00:00:00:00:00" },
		"prev_hash":  func(b *Block) { b.PrevHash = strings.Repeat("0", 64) },
	}

	const total = 4
	for field, mutate := range mutators {
		// Every block except the last.
		for target := 0; target < total-1; target++ {
			t.Run(field+"/block"+strconv.Itoa(target), func(t *testing.T) {
				c := openTestChain(t)
				appendN(t, c, total)

				rewriteLines(t, c.Path(), func(lines []string) []string {
					b, err := parseBlock([]byte(lines[target]))
					if err != nil {
						t.Fatalf("parseBlock() error = %v", err)
					}
					mutate(&b)
					out, err := encodeCompact(b)
					if err != nil {
						t.Fatalf("encodeCompact() error = %v", err)
					}
					lines[target] = string(out)
					return lines
				})

				_, err := c.Validate()
				if !errors.Is(err, ErrTampered) {
					t.Fatalf("Validate() error = %v, want ErrTampered", err)
				}
				var ie *IntegrityError
				if !errors.As(err, &ie) {
					t.Fatalf("Validate() error %T is not *IntegrityError", err)
				}
				// Lines are 1-based; the successor of target is target+2.
				if ie.Line > target+2 {
					t.Errorf("failure reported at line %d, want <= %d", ie.Line, target+2)
				}
			})
		}
	}
}

type warnRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *warnRecorder) Debug(string, ...any) {}
func (r *warnRecorder) Info(string, ...any)  {}
func (r *warnRecorder) Error(string, ...any) {}
func (r *warnRecorder) Warn(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *warnRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func writeBlocks(t *testing.T, path string, blocks ...Block) {
	t.Helper()
	var buf bytes.Buffer
	for _, b := range blocks {
		line, err := encodeCompact(b)
		if err != nil {
			t.Fatalf("encodeCompact() error = %v", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("writing chain: %v", err)
	}
}

func TestValidate_SingleBlockAlwaysValid(t *testing.T) {
	tests := []struct {
		name  string
		block Block
	}{
		{"stale curr_hash", Block{Timestamp: "100", Event: "SUCCESS", User: "Alice", PrevHash: Genesis, CurrHash: "deadbeef"}},
		{"prev_hash not genesis", Block{Timestamp: "100", Event: "FAIL", User: "Bob", PrevHash: strings.Repeat("a", 64), CurrHash: "cafe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := openTestChain(t)
			writeBlocks(t, c.Path(), tt.block)

			if n, err := c.Validate(); err != nil || n != 1 {
				t.Errorf("Validate() = (%d, %v), want (1, nil)", n, err)
			}
		})
	}
}

func TestValidate_LastBlockHasNoSuccessor(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 3)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		lines[2] = strings.Replace(lines[2], `"user":"User2"`, `"user":"Eve"`, 1)
		return lines
	})

	if n, err := c.Validate(); err != nil || n != 3 {
		t.Errorf("Validate() = (%d, %v), want (3, nil)", n, err)
	}
}

func TestValidate_StaleStoredHashIsLogged(t *testing.T) {
	c := openTestChain(t)
	rec := &warnRecorder{}
	c.SetLogger(rec)
	appendN(t, c, 3)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		b, err := parseBlock([]byte(lines[0]))
		if err != nil {
			t.Fatalf("parseBlock() error = %v", err)
		}
		b.CurrHash = strings.Repeat("f", 64)
		out, err := encodeCompact(b)
		if err != nil {
			t.Fatalf("encodeCompact() error = %v", err)
		}
		lines[0] = string(out)
		return lines
	})

	if n, err := c.Validate(); err != nil || n != 3 {
		t.Fatalf("Validate() = (%d, %v), want (3, nil)", n, err)
	}
	if rec.count() != 1 {
		t.Errorf("warnings = %d, want 1", rec.count())
	}
}

func TestValidate_ConcurrentAppend(t *testing.T) {
	c := openTestChain(t)

	const appends = 40
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < appends; i++ {
			e := aliceEntry()
			e.Timestamp = strconv.Itoa(2000 + i)
			if _, err := c.Append(e); err != nil {
				t.Errorf("Append(%d) error = %v", i, err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			if n, err := c.Validate(); err != nil || n != appends {
				t.Errorf("final Validate() = (%d, %v), want (%d, nil)", n, err, appends)
			}
			return
		default:
		}
		if _, err := c.Validate(); err != nil {
			t.Fatalf("Validate() during appends error = %v", err)
		}
	}
}

func TestValidate_ReportsTimestamp(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 3)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		lines[1] = strings.Replace(lines[1], `"user":"User1"`, `"user":"Eve"`, 1)
		return lines
	})

	_, err := c.Validate()
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("Validate() error = %v, want *IntegrityError", err)
	}
	// The edit to block 1 surfaces at its successor.
	if ie.Line != 3 {
		t.Errorf("Line = %d, want 3", ie.Line)
	}
	if ie.Timestamp != "1002" {
		t.Errorf("Timestamp = %q, want %q", ie.Timestamp, "1002")
	}
	if !strings.Contains(err.Error(), "1002") {
		t.Errorf("Error() = %q, want it to mention the timestamp", err.Error())
	}
}

func TestValidate_UnparsableLine(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 2)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		return append(lines, "{not json")
	})

	n, err := c.Validate()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Validate() error = %v, want ErrMalformed", err)
	}
	if n != 2 {
		t.Errorf("Validate() count = %d, want 2 blocks checked before failure", n)
	}
}

func TestValidate_SkipsBlankLines(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 2)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		return []string{lines[0], "", "   ", lines[1]}
	})

	if n, err := c.Validate(); err != nil || n != 2 {
		t.Errorf("Validate() = (%d, %v), want (2, nil)", n, err)
	}
}

func TestValidate_DeletedBlock(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 3)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		return []string{lines[0], lines[2]}
	})

	if _, err := c.Validate(); !errors.Is(err, ErrTampered) {
		t.Errorf("Validate() error = %v, want ErrTampered", err)
	}
}

func TestAppend_ChainsOffLastReadableLine(t *testing.T) {
	c := openTestChain(t)
	blocks := appendN(t, c, 2)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		return append(lines, "garbage")
	})

	b, err := c.Append(aliceEntry())
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if b.PrevHash != blocks[1].CurrHash {
		t.Errorf("PrevHash = %q, want last readable hash %q", b.PrevHash, blocks[1].CurrHash)
	}
}

func TestAppend_TamperingDoesNotBlockAppends(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 2)

	rewriteLines(t, c.Path(), func(lines []string) []string {
		lines[0] = strings.Replace(lines[0], `"event":"TAMPERING"`, `"event":"SUCCESS"`, 1)
		return lines
	})

	if _, err := c.Append(aliceEntry()); err != nil {
		t.Fatalf("Append() on tampered chain error = %v", err)
	}
	blocks, err := c.Blocks()
	if err != nil {
		t.Fatalf("Blocks() error = %v", err)
	}
	if len(blocks) != 3 {
		t.Errorf("len(Blocks()) = %d, want 3", len(blocks))
	}
}

func TestAppend_NeverRewritesPriorLines(t *testing.T) {
	c := openTestChain(t)
	appendN(t, c, 2)

	before, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatal(err)
	}
	appendN(t, c, 1)
	after, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(after, before) {
		t.Error("Append() modified existing content")
	}
	if bytes.Count(after, []byte("\n")) != 3 {
		t.Errorf("line count = %d, want 3", bytes.Count(after, []byte("\n")))
	}
}

func TestBlocks(t *testing.T) {
	c := openTestChain(t)
	want := appendN(t, c, 3)

	got, err := c.Blocks()
	if err != nil {
		t.Fatalf("Blocks() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len(Blocks()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("block %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPrint(t *testing.T) {
	c := openTestChain(t)

	var empty bytes.Buffer
	if err := c.Print(&empty); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if !strings.Contains(empty.String(), "empty") {
		t.Errorf("Print() on empty log = %q", empty.String())
	}

	if _, err := c.Append(aliceEntry()); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := c.Print(&buf); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Block 0:", "Alice", "AA:BB:CC:DD:EE:FF", "GENESIS", "SUCCESS"} {
		if !strings.Contains(out, want) {
			t.Errorf("Print() output missing %q:\n%s", want, out)
		}
	}
}
