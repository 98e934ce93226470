// Package fs provides the filesystem verbs and the persistent variable and
// settings verbs. It is locked: the batch interpreter and the transfer
// protocol depend on files being manageable from the shell.
package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/spf13/afero"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/platform"
)

// Name is the capability name used by cap load.
const Name = "fs"

// EnvGroup is the settings group holding saved variables.
const EnvGroup = "env"

var usages = map[string]string{
	"ls":       "ls [<dir>]",
	"cat":      "cat <file>",
	"rm":       "rm <file>",
	"mv":       "mv <from> <to>",
	"cp":       "cp <from> <to>",
	"mkdir":    "mkdir <dir>",
	"touch":    "touch <file>",
	"df":       "df",
	"env":      "env [list] | env save|del <var> | env load",
	"settings": "settings [list] | settings get|del <group> <key> | settings set <group> <key> <value>",
}

var verbs = []string{"ls", "cat", "rm", "mv", "cp", "mkdir", "touch", "df", "env", "settings"}

// Capability implements the filesystem verbs.
type Capability struct {
	capability.Base
}

// New constructs the capability.
func New() capability.Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return Name }

// Commands implements capability.Capability.
func (c *Capability) Commands() []string { return verbs }

// Locked implements capability.Locker.
func (c *Capability) Locked() bool { return true }

// Usage implements capability.Usager.
func (c *Capability) Usage(verb string) (string, bool) {
	u, ok := usages[verb]
	return u, ok
}

// Setup restores the saved variables.
func (c *Capability) Setup(ctx *capability.Context) error {
	n := loadEnv(ctx)
	if n > 0 && ctx.Logger != nil {
		ctx.Logger.Debug("variables restored", "count", n)
	}
	return nil
}

// Loop implements capability.Capability.
func (c *Capability) Loop(*capability.Context) {}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx *capability.Context, req *command.Request) command.Exit {
	fsys := ctx.Platform.FS()
	l := req.Line
	switch l.Verb() {
	case "ls":
		return list(fsys, req, clean(l.Arg(1)))
	case "cat":
		if !l.Has(1) {
			return req.Usage(usages["cat"])
		}
		data, err := afero.ReadFile(fsys, clean(l.Arg(1)))
		if err != nil {
			return req.Fail("cat: %v", unwrapPath(err))
		}
		req.Printf("%s", data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			req.Println()
		}
		return command.Success
	case "rm":
		if !l.Has(1) {
			return req.Usage(usages["rm"])
		}
		p := clean(l.Arg(1))
		if info, err := fsys.Stat(p); err == nil && info.IsDir() {
			err = fsys.RemoveAll(p)
			if err != nil {
				return req.Fail("rm: %v", unwrapPath(err))
			}
			return command.Success
		}
		if err := fsys.Remove(p); err != nil {
			return req.Fail("rm: %v", unwrapPath(err))
		}
		return command.Success
	case "mv":
		if l.Len() < 3 {
			return req.Usage(usages["mv"])
		}
		if err := fsys.Rename(clean(l.Arg(1)), clean(l.Arg(2))); err != nil {
			return req.Fail("mv: %v", unwrapPath(err))
		}
		return command.Success
	case "cp":
		if l.Len() < 3 {
			return req.Usage(usages["cp"])
		}
		if err := copyFile(fsys, clean(l.Arg(1)), clean(l.Arg(2))); err != nil {
			return req.Fail("cp: %v", unwrapPath(err))
		}
		return command.Success
	case "mkdir":
		if !l.Has(1) {
			return req.Usage(usages["mkdir"])
		}
		if err := fsys.MkdirAll(clean(l.Arg(1)), 0o755); err != nil {
			return req.Fail("mkdir: %v", unwrapPath(err))
		}
		return command.Success
	case "touch":
		if !l.Has(1) {
			return req.Usage(usages["touch"])
		}
		p := clean(l.Arg(1))
		f, err := fsys.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return req.Fail("touch: %v", unwrapPath(err))
		}
		_ = f.Close()
		now := ctx.Now()
		_ = fsys.Chtimes(p, now, now)
		return command.Success
	case "df":
		used, err := platform.DiskUsage(fsys)
		if err != nil {
			return req.Fail("df: %v", err)
		}
		total := ctx.Platform.FSCapacity()
		free := platform.FreeSpace(ctx.Platform)
		req.Printf("%-10s %10s %10s %10s %5s\n", "fs", "size", "used", "free", "use%")
		pct := int64(0)
		if total > 0 {
			pct = used * 100 / total
		}
		req.Printf("%-10s %10d %10d %10d %4d%%\n", "/", total, used, free, pct)
		req.SetOutput(fmt.Sprintf("%d", free))
		return command.Success
	case "env":
		return env(ctx, req)
	case "settings":
		return settingsVerb(ctx, req)
	}
	return command.NotHandled
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// unwrapPath drops the operation and path prefix of *os.PathError values;
// the verb already names the operation.
func unwrapPath(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return fmt.Errorf("%s: %w", pe.Path, pe.Err)
	}
	return err
}

func list(fsys afero.Fs, req *command.Request, dir string) command.Exit {
	info, err := fsys.Stat(dir)
	if err != nil {
		return req.Fail("ls: %v", unwrapPath(err))
	}
	if !info.IsDir() {
		req.Printf("%8d %s\n", info.Size(), dir)
		return command.Success
	}
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return req.Fail("ls: %v", unwrapPath(err))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var total int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			req.Printf("%8s %s/\n", "<dir>", name)
			continue
		}
		total += e.Size()
		req.Printf("%8d %s\n", e.Size(), name)
	}
	req.Printf("%d entries, %d bytes\n", len(entries), total)
	return command.Success
}

func copyFile(fsys afero.Fs, from, to string) error {
	src, err := fsys.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := fsys.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func loadEnv(ctx *capability.Context) int {
	if ctx.Settings == nil {
		return 0
	}
	n := 0
	for _, k := range ctx.Settings.Keys(EnvGroup) {
		if err := ctx.Vars.Set(k, ctx.Settings.Load(EnvGroup, k, "")); err == nil {
			n++
		}
	}
	return n
}

func env(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	st := ctx.Settings
	if st == nil {
		return req.Fail("env: no settings store")
	}
	switch l.Arg(1) {
	case "", "list":
		for _, k := range st.Keys(EnvGroup) {
			req.Printf("%s=%s\n", k, st.Load(EnvGroup, k, ""))
		}
		return command.Success
	case "save":
		name := l.Arg(2)
		v, ok := ctx.Vars.Get(name)
		if !ok {
			return req.Fail("env: %s not set", name)
		}
		if err := st.Save(EnvGroup, name, v); err != nil {
			return req.Fail("env: %v", err)
		}
		return command.Success
	case "del":
		if err := st.Delete(EnvGroup, l.Arg(2)); err != nil {
			return req.Fail("env: %v", err)
		}
		return command.Success
	case "load":
		req.SetOutput(fmt.Sprintf("%d", loadEnv(ctx)))
		return command.Success
	}
	return req.Usage(usages["env"])
}

func settingsVerb(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	st := ctx.Settings
	if st == nil {
		return req.Fail("settings: no settings store")
	}
	grp := l.Arg(2)
	if grp == "-" || grp == "/" {
		grp = ""
	}
	key := l.Arg(3)
	switch l.Arg(1) {
	case "", "list":
		for _, k := range st.Keys("") {
			req.Printf("%s = %s\n", k, st.Load("", k, ""))
		}
		for _, g := range st.Groups() {
			for _, k := range st.Keys(g) {
				req.Printf("%s.%s = %s\n", g, k, st.Load(g, k, ""))
			}
		}
		return command.Success
	case "get":
		if key == "" {
			return req.Usage(usages["settings"])
		}
		const missing = "\x00"
		v := st.Load(grp, key, missing)
		if v == missing {
			return req.Fail("settings: %s not found", key)
		}
		req.Println(v)
		req.SetOutput(v)
		return command.Success
	case "set":
		if key == "" || !l.Has(4) {
			return req.Usage(usages["settings"])
		}
		if err := st.Save(grp, key, command.Unquote(l.After(3))); err != nil {
			return req.Fail("settings: %v", err)
		}
		return command.Success
	case "del":
		if key == "" {
			return req.Usage(usages["settings"])
		}
		if err := st.Delete(grp, key); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	}
	return req.Usage(usages["settings"])
}
