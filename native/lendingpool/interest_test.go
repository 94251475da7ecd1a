package lendingpool

import (
	"errors"
	"math/big"
	"testing"
)

func rampModel() *InterestRateModel {
	return &InterestRateModel{
		RateAt50E18:  big.NewInt(100),
		RateAt60E18:  big.NewInt(200),
		RateAt70E18:  big.NewInt(400),
		RateAt80E18:  big.NewInt(800),
		RateAt90E18:  big.NewInt(1_600),
		RateAt95E18:  big.NewInt(3_200),
		RateAt100E18: big.NewInt(6_400),
	}
}

func TestDebtRateAtBreakpoints(t *testing.T) {
	model := rampModel()
	cases := []struct {
		utilisation int64
		want        int64
	}{
		{0, 0},
		{250_000, 51},        // halfway up the origin segment
		{500_000, 101},       // breakpoint rate plus the tie-break unit
		{550_000, 151},       // halfway between 50% and 60%
		{600_000, 201},
		{950_000, 3_201},
		{1_000_000, 6_401},
		{1_050_000, 9_601},   // extrapolated with the 95->100 slope
	}
	for _, tc := range cases {
		got := model.DebtRateE18(big.NewInt(tc.utilisation))
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("rate(%d) = %s, want %d", tc.utilisation, got, tc.want)
		}
	}
}

func TestDebtRateNilModelIsZero(t *testing.T) {
	var model *InterestRateModel
	if got := model.DebtRateE18(big.NewInt(500_000)); got.Sign() != 0 {
		t.Fatalf("nil model rate = %s, want 0", got)
	}
}

func TestModelValidateRejectsDecreasingRates(t *testing.T) {
	model := rampModel()
	model.RateAt80E18 = big.NewInt(300)
	if err := model.Validate(); !errors.Is(err, ErrInvalidInterestRateModel) {
		t.Fatalf("decreasing model: got %v", err)
	}
	if err := rampModel().Validate(); err != nil {
		t.Fatalf("valid model rejected: %v", err)
	}
}

func TestUtilisationOfEmptyReserveIsFull(t *testing.T) {
	data := &ReserveData{}
	if got := (data).UtilisationE6(); got.Cmp(oneE6) != 0 {
		t.Fatalf("empty utilisation = %s, want 1e6", got)
	}
	data.TotalDeposit = big.NewInt(1_000)
	if got := data.UtilisationE6(); got.Sign() != 0 {
		t.Fatalf("no-debt utilisation = %s, want 0", got)
	}
	data.TotalDebt = big.NewInt(250)
	if got := data.UtilisationE6(); got.Cmp(big.NewInt(250_000)) != 0 {
		t.Fatalf("utilisation = %s, want 250000", got)
	}
}

func TestRecalculateRatesStablecoinKeepsDebtRate(t *testing.T) {
	data := &ReserveData{
		TotalDeposit:       big.NewInt(1_000),
		TotalDebt:          big.NewInt(500),
		CurrentDebtRateE18: big.NewInt(42),
	}
	recalculateRates(data, nil)
	if data.CurrentDebtRateE18.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("administered rate changed: %s", data.CurrentDebtRateE18)
	}
	if data.CurrentDepositRateE18.Cmp(big.NewInt(21)) != 0 {
		t.Fatalf("deposit rate = %s, want 21", data.CurrentDepositRateE18)
	}
}

func TestRecalculateRatesEmptyDepositSide(t *testing.T) {
	data := &ReserveData{
		TotalDebt:          big.NewInt(500),
		CurrentDebtRateE18: big.NewInt(42),
	}
	recalculateRates(data, rampModel())
	if data.CurrentDepositRateE18.Sign() != 0 {
		t.Fatalf("deposit rate = %s, want 0", data.CurrentDepositRateE18)
	}
}
