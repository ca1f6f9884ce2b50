package transaction

import (
	"testing"

	"github.com/xraph/famledger/types"
)

func TestIsCounted(t *testing.T) {
	tests := []struct {
		name                        string
		approved, rejected, deleted bool
		want                        bool
	}{
		{"pending", false, false, false, false},
		{"approved", true, false, false, true},
		{"approved and rejected", true, true, false, false},
		{"approved and deleted", true, false, true, false},
		{"rejected", false, true, false, false},
		{"rejected and deleted", false, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := &Transaction{Approved: tt.approved, Rejected: tt.rejected, Deleted: tt.deleted}
			if got := txn.IsCounted(); got != tt.want {
				t.Errorf("IsCounted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignedEffect(t *testing.T) {
	tests := []struct {
		typ       Type
		want      int64
		supported bool
	}{
		{TypeDeposit, 500, true},
		{TypeInterest, 500, true},
		{TypeWithdrawal, -500, true},
		{TypeSubscription, -500, true},
		{TypeTransfer, 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.SignedEffect(types.Cents(500)); got.Amount != tt.want {
				t.Errorf("SignedEffect = %d, want %d", got.Amount, tt.want)
			}
			if got := tt.typ.Supported(); got != tt.supported {
				t.Errorf("Supported() = %v, want %v", got, tt.supported)
			}
		})
	}
}

func TestEffectDelta(t *testing.T) {
	base := &Transaction{Amount: types.Cents(5000), Type: TypeDeposit}

	approve := base.Clone()
	approve.Approved = true
	if d := EffectDelta(base, approve); d.Amount != 5000 {
		t.Errorf("approve delta = %d, want 5000", d.Amount)
	}

	reject := approve.Clone()
	reject.Rejected = true
	reject.Approved = false
	if d := EffectDelta(approve, reject); d.Amount != -5000 {
		t.Errorf("reject delta = %d, want -5000", d.Amount)
	}

	// Deleting an already rejected transaction must not reverse again.
	del := reject.Clone()
	del.Deleted = true
	if d := EffectDelta(reject, del); !d.IsZero() {
		t.Errorf("delete-after-reject delta = %d, want 0", d.Amount)
	}

	resize := approve.Clone()
	resize.Amount = types.Cents(7000)
	if d := EffectDelta(approve, resize); d.Amount != 2000 {
		t.Errorf("resize delta = %d, want 2000", d.Amount)
	}
}

func TestApprovedByDefault(t *testing.T) {
	for _, typ := range []Type{TypeDeposit, TypeWithdrawal, TypeSubscription, TypeTransfer} {
		if typ.ApprovedByDefault() {
			t.Errorf("%s should not be approved by default", typ)
		}
	}
	if !TypeInterest.ApprovedByDefault() {
		t.Error("interest should be approved by default")
	}
}
