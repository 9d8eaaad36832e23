package cmdrunner_test

import (
	"context"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/opencore-vm/ocpatch/pkg/common/cmdrunner"
)

func TestExecRunnerCapturesStdout(t *testing.T) {
	g := NewWithT(t)

	res, err := cmdrunner.New().Run(context.Background(), "sh", "-c", "echo hello")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Success()).To(BeTrue())
	g.Expect(res.Stdout).To(Equal("hello\n"))
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	g := NewWithT(t)

	res, err := cmdrunner.New().Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Success()).To(BeFalse())
	g.Expect(res.ExitCode).To(Equal(3))
	g.Expect(res.Output()).To(Equal("oops"))
}

func TestExecRunnerMissingBinary(t *testing.T) {
	g := NewWithT(t)

	_, err := cmdrunner.New().Run(context.Background(), "definitely-not-a-binary-xyz")
	g.Expect(err).To(HaveOccurred())
}

func TestFakeQueuesResponses(t *testing.T) {
	g := NewWithT(t)

	fake := cmdrunner.NewFake().
		Respond("diskutil mount disk0s1", cmdrunner.Result{ExitCode: 1, Stderr: "Resource busy"}).
		Respond("diskutil mount disk0s1", cmdrunner.Result{Stdout: "mounted"})

	res, err := fake.Run(context.Background(), "diskutil", "mount", "disk0s1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.ExitCode).To(Equal(1))

	res, err = fake.Run(context.Background(), "diskutil", "mount", "disk0s1")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Success()).To(BeTrue())

	// the last scripted response repeats
	res, _ = fake.Run(context.Background(), "diskutil", "mount", "disk0s1")
	g.Expect(res.Stdout).To(Equal("mounted"))

	g.Expect(fake.CallCount("diskutil mount")).To(Equal(3))
}
