package batch

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/vars"
)

type harness struct {
	fs afero.Fs
	d  *command.Dispatcher
	in *Interpreter
}

func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		if err := afero.WriteFile(fs, name, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	d := command.New(vars.New())
	in := New(fs, d)
	d.AddSource(command.NewTable("builtin", in.Entries()...))
	return &harness{fs: fs, d: d, in: in}
}

func (h *harness) run(line string) (string, command.Exit) {
	var out bytes.Buffer
	rc := h.d.Dispatch(line, &out, 0, nil)
	return out.String(), rc
}

const testBat = `X=hello
default:
  echo $X $1
greet:
  echo hi $1
`

func TestLabelsAndLocals(t *testing.T) {
	h := newHarness(t, map[string]string{"/test.bat": testBat})
	tests := []struct {
		line string
		want string
	}{
		{"exec /test.bat greet world", "echo hi $1\nhi world\n"},
		{"exec /test.bat default world", "echo $X $1\nhello world\n"},
		{"exec test", ""},
		{"exec test all there", "echo $X $1\nhello there\necho hi $1\nhi there\n"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, rc := h.run(tt.line)
			if rc != command.Success {
				t.Fatalf("exit = %v, want success", rc)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
	if _, ok := h.d.Vars().Get("X"); ok {
		t.Error("batch local leaked into the global store")
	}
}

func TestNestedEchoRestored(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/outer.bat": "@echo off\nexec inner\necho done\n",
		"/inner.bat": "set I 1\necho inner\n",
	})
	got, rc := h.run("exec outer")
	if rc != command.Success {
		t.Fatalf("exit = %v", rc)
	}
	if got != "inner\ndone\n" {
		t.Errorf("output = %q, want %q", got, "inner\ndone\n")
	}
	if !h.d.Echo() {
		t.Error("echo not restored after the outermost batch")
	}
	if h.in.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", h.in.Depth())
	}
}

func TestBreakEndsCurrentBatchOnly(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/outer.bat": "@echo off\nexec inner\necho outer\n",
		"/inner.bat": "echo one\nbreak\necho two\n",
	})
	got, _ := h.run("exec outer")
	if got != "one\nouter\n" {
		t.Errorf("output = %q, want %q", got, "one\nouter\n")
	}
}

func TestBreakOnFailure(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/b.bat":  "@echo off\nbreak on 1\nnope\necho after\n",
		"/ok.bat": "@echo off\nnope\necho after\n",
	})
	got, rc := h.run("exec b")
	if rc != command.Failure {
		t.Errorf("exit = %v, want failure", rc)
	}
	if got != "unknown command 'nope'\n" {
		t.Errorf("output = %q", got)
	}

	got, rc = h.run("exec ok")
	if rc != command.Success || !strings.HasSuffix(got, "after\n") {
		t.Errorf("failure without break on stopped the batch: %q, %v", got, rc)
	}
}

func TestMissingFile(t *testing.T) {
	h := newHarness(t, nil)
	got, rc := h.run("exec missing")
	if rc != command.Failure {
		t.Errorf("exit = %v, want failure", rc)
	}
	if !strings.Contains(got, "/missing.bat") {
		t.Errorf("output = %q, want the resolved path", got)
	}
	if got, rc := h.run("exec"); rc != command.Failure || !strings.HasPrefix(got, "usage:") {
		t.Errorf("exec without file = %q, %v", got, rc)
	}
}

func TestRecursionBounded(t *testing.T) {
	h := newHarness(t, map[string]string{"/self.bat": "@echo off\nexec self\n"})
	got, rc := h.run("exec self")
	if rc != command.Failure {
		t.Errorf("exit = %v, want failure", rc)
	}
	if strings.Count(got, ErrTooDeep.Error()) != 1 {
		t.Errorf("output = %q, want one depth error", got)
	}
	if h.in.MaxDepth() != command.MaxDepth {
		t.Errorf("MaxDepth() = %d, want %d", h.in.MaxDepth(), command.MaxDepth)
	}
	if !h.d.Echo() {
		t.Error("echo not restored")
	}
}

func TestSelfLabelSeesLocals(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/sub.bat": "X=hi\nmain:\n@exec /sub.bat show\nshow:\n@echo $X\n",
	})
	got, _ := h.run("exec sub main")
	if got != "hi\n" {
		t.Errorf("output = %q, want %q", got, "hi\n")
	}
}

func TestAssignmentsAndGlobals(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/set.bat": "A=\"two words\"\nB=$A!\n@set G $B\n",
	})
	if _, rc := h.run("exec set"); rc != command.Success {
		t.Fatalf("exit = %v", rc)
	}
	if got := h.d.Vars().Value("G"); got != "two words!" {
		t.Errorf("G = %q, want %q", got, "two words!")
	}
}

func TestMan(t *testing.T) {
	h := newHarness(t, map[string]string{
		ManFile: "@echo off\ngpio:\necho gpio add <pin> <type> <name>\ntimer:\necho timer add\n",
	})
	got, rc := h.run("man gpio")
	if rc != command.Success {
		t.Fatalf("exit = %v", rc)
	}
	if got != "gpio add <pin> <type> <name>\n" {
		t.Errorf("output = %q", got)
	}
}

func TestTestVerb(t *testing.T) {
	h := newHarness(t, map[string]string{"/test.bat": testBat})
	tests := []struct {
		line string
		want command.Exit
	}{
		{"test ! -e /nope", command.Success},
		{"test 3 -lt 4", command.Success},
		{"test foo = foo", command.Success},
		{"test 3 -eq foo", command.Failure},
		{"test -e /test.bat", command.Success},
		{"test -f /test.bat", command.Success},
		{`test -z ""`, command.Success},
		{"test -n abc", command.Success},
		{"test 2.5 -ge 3", command.Failure},
		{"test a != a", command.Failure},
		{"test", command.Failure},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if _, rc := h.run(tt.line); rc != tt.want {
				t.Errorf("%s = %v, want %v", tt.line, rc, tt.want)
			}
			if got := h.d.Vars().Value(vars.Exit); got != strconv.Itoa(int(tt.want)) {
				t.Errorf("? = %q after %s", got, tt.line)
			}
		})
	}
}

func TestStripComment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"echo a # note", "echo a"},
		{"# whole line", ""},
		{"echo $#", "echo $#"},
		{"echo $(#)", "echo $(#)"},
		{`gpio add 2 button b 0 "set B 1 #long reboot"`, `gpio add 2 button b 0 "set B 1 #long reboot"`},
	}
	for _, tt := range tests {
		if got := StripComment(tt.in); got != tt.want {
			t.Errorf("StripComment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"test", "/test.bat", nil},
		{"man.man", "/man.man", nil},
		{"/dir/x.bat", "/dir/x.bat", nil},
		{" ", "", ErrNoFile},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.in)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.in, got, err, tt.want, tt.err)
		}
	}
}
