package nsutil

import (
	"errors"
	"strings"
	"testing"

	"alice/errs"
)

func TestSetHasAndWith(t *testing.T) {
	s := Set(0).With(Mount).With(PID)
	if !s.Has(Mount) || !s.Has(PID) {
		t.Fatalf("Set %b missing expected members", s)
	}
	if s.Has(Net) {
		t.Errorf("Set %b unexpectedly has Net", s)
	}
}

func TestDefaultSetMembers(t *testing.T) {
	got := DefaultSet.Members()
	want := []Namespace{Mount, PID, UTS, IPC}
	if len(got) != len(want) {
		t.Fatalf("DefaultSet.Members() = %v, want %v", got, want)
	}
	for i, ns := range want {
		if got[i] != ns {
			t.Errorf("Members()[%d] = %v, want %v", i, got[i], ns)
		}
	}
}

func TestMembersOrderingFollowsBitOrder(t *testing.T) {
	s := Set(0).With(Cgroup).With(Mount)
	got := s.Members()
	if len(got) != 2 || got[0] != Mount || got[1] != Cgroup {
		t.Errorf("Members() = %v, want [Mount Cgroup]", got)
	}
}

func TestCloneFlagsCombinesBits(t *testing.T) {
	s := Set(0).With(Mount).With(UTS)
	flags := s.CloneFlags()
	if flags&0x02000000 != 0 {
		// CLONE_NEWCGROUP should not be set for this set.
		t.Errorf("CloneFlags() unexpectedly includes CLONE_NEWCGROUP: %x", flags)
	}
	if flags == 0 {
		t.Error("CloneFlags() returned 0 for a non-empty set")
	}
}

func TestSysProcAttrSetsUnshareflagsWithoutUser(t *testing.T) {
	attr := DefaultSet.SysProcAttr()
	if attr.Unshareflags == 0 {
		t.Error("SysProcAttr() without User namespace should set Unshareflags")
	}
}

func TestSysProcAttrOmitsUnshareflagsWithUser(t *testing.T) {
	s := DefaultSet.With(User)
	attr := s.SysProcAttr()
	if attr.Unshareflags != 0 {
		t.Error("SysProcAttr() with User namespace should leave Unshareflags unset")
	}
}

func TestProcNsPath(t *testing.T) {
	got := ProcNsPath(1234, Net)
	want := "/proc/1234/ns/net"
	if got != want {
		t.Errorf("ProcNsPath = %q, want %q", got, want)
	}
}

func TestValidateMappingsRejectsOverlap(t *testing.T) {
	overlapping := []IDMapping{
		{InsideID: 0, OutsideID: 100000, Length: 1000},
		{InsideID: 500, OutsideID: 200000, Length: 1000},
	}
	if err := ValidateMappings(overlapping); !errors.Is(err, errs.ErrMappingOverlap) {
		t.Errorf("ValidateMappings(overlapping insides) = %v, want ErrMappingOverlap", err)
	}

	overlappingOutside := []IDMapping{
		{InsideID: 0, OutsideID: 100000, Length: 1000},
		{InsideID: 2000, OutsideID: 100500, Length: 1000},
	}
	if err := ValidateMappings(overlappingOutside); !errors.Is(err, errs.ErrMappingOverlap) {
		t.Errorf("ValidateMappings(overlapping outsides) = %v, want ErrMappingOverlap", err)
	}
}

func TestValidateMappingsAcceptsDisjointRanges(t *testing.T) {
	disjoint := []IDMapping{
		{InsideID: 0, OutsideID: 100000, Length: 1000},
		{InsideID: 1000, OutsideID: 200000, Length: 1000},
	}
	if err := ValidateMappings(disjoint); err != nil {
		t.Errorf("ValidateMappings(disjoint) = %v, want nil", err)
	}
}

func TestSetHostnameRejectsOversizedName(t *testing.T) {
	long := strings.Repeat("a", maxHostnameLen+1)
	if err := SetHostname(long); err == nil {
		t.Error("SetHostname with oversized name succeeded, want an error")
	}
}

func TestSetHostnameRejectsNonPrintable(t *testing.T) {
	if err := SetHostname("bad\x01name"); err == nil {
		t.Error("SetHostname with control byte succeeded, want an error")
	}
}
