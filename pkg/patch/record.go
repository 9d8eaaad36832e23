package patch

import "encoding/base64"

// Record is one OpenCore kernel patch entry. Comment is globally unique
// per logical patch and is the sole dedup key; no other field takes part
// in "already applied" detection.
type Record struct {
	Arch        string
	Base        string
	Comment     string
	Count       int
	Enabled     bool
	Find        []byte
	Identifier  string
	Limit       int
	Mask        []byte
	MaxKernel   string
	MinKernel   string
	Replace     []byte
	ReplaceMask []byte
	Skip        int
}

// dict renders the record in the dynamic form the config tree uses.
func (r Record) dict() map[string]interface{} {
	return map[string]interface{}{
		"Arch":        r.Arch,
		"Base":        r.Base,
		"Comment":     r.Comment,
		"Count":       r.Count,
		"Enabled":     r.Enabled,
		"Find":        dataValue(r.Find),
		"Identifier":  r.Identifier,
		"Limit":       r.Limit,
		"Mask":        dataValue(r.Mask),
		"MaxKernel":   r.MaxKernel,
		"MinKernel":   r.MinKernel,
		"Replace":     dataValue(r.Replace),
		"ReplaceMask": dataValue(r.ReplaceMask),
		"Skip":        r.Skip,
	}
}

func dataValue(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func mustBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// SonomaBTPatches returns the two kernel patches that hide the hypervisor
// flag from macOS Sonoma so Bluetooth comes up inside a VM. The byte
// strings swap adjacent sysctl name entries in the kernel's string table.
func SonomaBTPatches() []Record {
	return []Record{
		{
			Arch:       "x86_64",
			Comment:    "Sonoma VM BT Enabler - PART 1 of 2 - Patch kern.hv_vmm_present=0",
			Count:      1,
			Enabled:    true,
			Find:       mustBase64("aGliZXJuYXRlaGlkcmVhZHkAaGliZXJuYXRlY291bnQA"),
			Replace:    mustBase64("aGliZXJuYXRlaGlkcmVhZHkAaHZfdm1tX3ByZXNlbnQA"),
			Identifier: "kernel",
			MinKernel:  "20.4.0",
		},
		{
			Arch:       "x86_64",
			Comment:    "Sonoma VM BT Enabler - PART 2 of 2 - Patch kern.hv_vmm_present=0",
			Count:      1,
			Enabled:    true,
			Find:       mustBase64("Ym9vdCBzZXNzaW9uIFVVSUQAaHZfdm1tX3ByZXNlbnQA"),
			Replace:    mustBase64("Ym9vdCBzZXNzaW9uIFVVSUQAaGliZXJuYXRlY291bnQA"),
			Identifier: "kernel",
			MinKernel:  "22.0.0",
		},
	}
}
