package validation

import (
	"testing"

	"github.com/dispatchcore/platform/internal/domain/money"
)

func TestAddressValidate(t *testing.T) {
	if AddressValidate("abc") {
		t.Error("too short address should be invalid")
	}
	if !AddressValidate("רחוב הרצל 12") {
		t.Error("valid address rejected")
	}
}

func TestAddressNormalizeExpandsAbbreviation(t *testing.T) {
	out := AddressNormalize("רח' הרצל 12")
	if out != "רחוב הרצל 12" {
		t.Errorf("got %q", out)
	}
}

func TestNameValidate(t *testing.T) {
	if NameValidate("") {
		t.Error("empty name should be invalid")
	}
	if !NameValidate("יוסי") {
		t.Error("valid name rejected")
	}
}

func TestAmountValidate(t *testing.T) {
	if !AmountValidate(money.FromMajor(10.50)) {
		t.Error("valid amount rejected")
	}
	if AmountValidate(money.FromMajor(-1)) {
		t.Error("negative amount should be invalid")
	}
	if AmountValidate(money.FromMajor(100001)) {
		t.Error("amount over max should be invalid")
	}
}
