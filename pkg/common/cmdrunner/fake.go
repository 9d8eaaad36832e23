package cmdrunner

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Fake is a scripted Runner for tests. Responses are keyed by the joined
// command line; unkeyed invocations fall through to Default.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]Result
	calls     []string
	binaries  map[string]bool

	// Default is returned for commands with no scripted response.
	Default Result
	// Err, when set, is returned for every invocation.
	Err error
}

func NewFake() *Fake {
	return &Fake{
		responses: make(map[string][]Result),
		binaries:  make(map[string]bool),
	}
}

// Respond scripts a response for a command line. Multiple calls for the
// same command line queue responses consumed in order, with the last one
// repeating.
func (f *Fake) Respond(cmdline string, res Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = append(f.responses[cmdline], res)
	return f
}

func (f *Fake) HasBinary(name string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binaries[name] = true
	return f
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, errors.Wrap(err, "failed to run command")
	}

	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdline)

	if f.Err != nil {
		return Result{}, f.Err
	}
	queue, ok := f.responses[cmdline]
	if !ok {
		return f.Default, nil
	}
	res := queue[0]
	if len(queue) > 1 {
		f.responses[cmdline] = queue[1:]
	}
	return res, nil
}

func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.binaries[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.Errorf("failed to resolve %s", name)
}

// Calls returns every command line seen so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount reports how many invocations had the given prefix.
func (f *Fake) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
