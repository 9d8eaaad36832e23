package plistutil_test

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/opencore-vm/ocpatch/pkg/plistutil"
)

func TestRoot(t *testing.T) {
	g := NewWithT(t)

	d, err := plistutil.Root(map[string]interface{}{"Kernel": "x"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(d).To(HaveKey("Kernel"))

	_, err = plistutil.Root([]interface{}{"not", "a", "dict"})
	var terr *plistutil.TypeError
	g.Expect(errors.As(err, &terr)).To(BeTrue())
	g.Expect(terr.Key).To(Equal("(root)"))
}

func TestDictAtDistinguishesAbsentFromWrongType(t *testing.T) {
	g := NewWithT(t)

	root := map[string]interface{}{
		"Kernel": map[string]interface{}{"Patch": []interface{}{}},
		"Bogus":  42,
	}

	d, present, err := plistutil.DictAt(root, "Kernel")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(present).To(BeTrue())
	g.Expect(d).To(HaveKey("Patch"))

	_, present, err = plistutil.DictAt(root, "Missing")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(present).To(BeFalse())

	_, present, err = plistutil.DictAt(root, "Bogus")
	g.Expect(present).To(BeTrue())
	var terr *plistutil.TypeError
	g.Expect(errors.As(err, &terr)).To(BeTrue())
	g.Expect(terr.Key).To(Equal("Bogus"))
	g.Expect(terr.Want).To(Equal("dict"))
}

func TestArrayAtDistinguishesAbsentFromWrongType(t *testing.T) {
	g := NewWithT(t)

	d := map[string]interface{}{
		"Patch": []interface{}{"a", "b"},
		"Bogus": "nope",
	}

	arr, present, err := plistutil.ArrayAt(d, "Patch")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(present).To(BeTrue())
	g.Expect(arr).To(HaveLen(2))

	_, present, err = plistutil.ArrayAt(d, "Missing")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(present).To(BeFalse())

	_, _, err = plistutil.ArrayAt(d, "Bogus")
	var terr *plistutil.TypeError
	g.Expect(errors.As(err, &terr)).To(BeTrue())
}

func TestStringAt(t *testing.T) {
	g := NewWithT(t)

	d := map[string]interface{}{
		"Comment": "some patch",
		"Count":   1,
	}

	s, err := plistutil.StringAt(d, "Comment")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s).To(Equal("some patch"))

	s, err = plistutil.StringAt(d, "Missing")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s).To(BeEmpty())

	_, err = plistutil.StringAt(d, "Count")
	var terr *plistutil.TypeError
	g.Expect(errors.As(err, &terr)).To(BeTrue())
}
