package patch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
)

func TestFileLockExcludesSecondHolder(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "config.plist")

	first := NewFileLock(path)
	g.Expect(first.Acquire(context.Background(), time.Second)).To(Succeed())

	second := NewFileLock(path)
	err := second.Acquire(context.Background(), 300*time.Millisecond)

	var lerr *LockTimeoutError
	g.Expect(errors.As(err, &lerr)).To(BeTrue())
	g.Expect(lerr.Path).To(Equal(path + ".lock"))

	first.Release()
	g.Expect(second.Acquire(context.Background(), time.Second)).To(Succeed())
	second.Release()
}

func TestFileLockReleaseRemovesArtifact(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "config.plist")

	l := NewFileLock(path)
	g.Expect(l.Acquire(context.Background(), time.Second)).To(Succeed())
	g.Expect(path + ".lock").To(BeAnExistingFile())

	l.Release()
	g.Expect(path + ".lock").NotTo(BeAnExistingFile())
}

func TestFileLockSerializesCriticalSections(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "config.plist")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := NewFileLock(path)
			if err := l.Acquire(context.Background(), 5*time.Second); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > 1 {
				overlap = true
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()

	g.Expect(overlap).To(BeFalse(), "two holders were inside the critical section at once")
}

func TestFileLockAcquireHonorsContext(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "config.plist")

	holder := NewFileLock(path)
	g.Expect(holder.Acquire(context.Background(), time.Second)).To(Succeed())
	defer holder.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	waiter := NewFileLock(path)
	err := waiter.Acquire(ctx, time.Minute)
	g.Expect(err).To(HaveOccurred())

	_ = os.Remove(path + ".lock")
}
