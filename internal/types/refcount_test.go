package types

import (
	"testing"
)

func TestRefcountPolicy(t *testing.T) {
	intArr := ArrayOf(FutureInt)
	point := StructOf("point", Field{Name: "x", Type: FutureInt}, Field{Name: "y", Type: FutureInt})

	tests := []struct {
		name      string
		v         *Var
		wantRead  bool
		wantWrite bool
	}{
		{"local int value", NewVar("i", ValueInt, StorageLocal, DefLocalUser), false, false},
		{"local string value", NewVar("s", ValueString, StorageLocal, DefLocalCompiler), false, false},
		{"int future", NewVar("f", FutureInt, StorageStack, DefLocalUser), true, false},
		{"float future inarg", NewVar("g", FutureFloat, StorageStack, DefInArg), true, false},
		{"array", NewVar("A", intArr, StorageStack, DefLocalUser), true, true},
		{"array outarg", NewVar("B", intArr, StorageStack, DefOutArg), true, true},
		{"array alias", NewVar("C", intArr, StorageAlias, DefLocalCompiler), true, true},
		{"array ref", NewVar("r", RefTo(intArr), StorageStack, DefLocalCompiler), true, false},
		{"struct", NewVar("p", point, StorageStack, DefLocalUser), true, false},
		{"updateable", NewVar("u", UpdateableFloat, StorageStack, DefLocalUser), true, false},
		{"global int", NewGlobalConst("K", FutureInt), false, false},
		{"global array", NewGlobalConst("G", intArr), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasReadRefcount(tt.v); got != tt.wantRead {
				t.Errorf("HasReadRefcount(%s): want %v, got %v", tt.v.Describe(), tt.wantRead, got)
			}

			if got := HasWriteRefcount(tt.v); got != tt.wantWrite {
				t.Errorf("HasWriteRefcount(%s): want %v, got %v", tt.v.Describe(), tt.wantWrite, got)
			}

			if got := HasRefcount(tt.v, ReadRefcount); got != tt.wantRead {
				t.Errorf("HasRefcount(read): want %v, got %v", tt.wantRead, got)
			}

			if got := HasRefcount(tt.v, WriteRefcount); got != tt.wantWrite {
				t.Errorf("HasRefcount(write): want %v, got %v", tt.wantWrite, got)
			}
		})
	}
}

func TestFilterWriteRefcount(t *testing.T) {
	a := NewVar("a", ArrayOf(FutureInt), StorageStack, DefLocalUser)
	f := NewVar("f", FutureInt, StorageStack, DefLocalUser)
	b := NewVar("b", ArrayOf(FutureString), StorageStack, DefInArg)
	g := NewGlobalConst("g", ArrayOf(FutureInt))
	c := NewVar("c", ArrayOf(ArrayOf(FutureInt)), StorageStack, DefLocalUser)

	in := []*Var{f, a, g, b, f, c}
	before := append([]*Var(nil), in...)

	got := FilterWriteRefcount(in)

	want := []string{"a", "b", "c"}
	if names := NameList(got); len(names) != len(want) {
		t.Fatalf("FilterWriteRefcount: want %v, got %v", want, names)
	} else {
		for i := range want {
			if names[i] != want[i] {
				t.Fatalf("FilterWriteRefcount: want %v, got %v", want, names)
			}
		}
	}

	for i := range in {
		if in[i] != before[i] {
			t.Fatalf("input mutated at %d: want %s, got %s", i, before[i], in[i])
		}
	}

	for _, v := range got {
		if !HasWriteRefcount(v) {
			t.Errorf("%s in result does not have a write refcount", v)
		}
	}

	if got := FilterWriteRefcount(nil); len(got) != 0 {
		t.Errorf("nil input: want empty, got %v", got)
	}
}
