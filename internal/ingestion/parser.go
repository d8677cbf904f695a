package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"LendLedger/internal/event"
)

// ParseRawEvent decodes one stream message into a typed chain event. The
// subject's last token names the event type: lend.events.Mint, and so on.
// Integer amounts travel as decimal strings because every on-chain mantissa
// overflows int64.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	eventType := raw.Subject[strings.LastIndex(raw.Subject, ".")+1:]

	switch eventType {
	case "AccrueInterest":
		return parseAccrueInterest(raw.Data)
	case "Mint":
		return parseMint(raw.Data)
	case "Redeem":
		return parseRedeem(raw.Data)
	case "Borrow":
		return parseBorrow(raw.Data)
	case "RepayBorrow":
		return parseRepayBorrow(raw.Data)
	case "LiquidateBorrow":
		return parseLiquidateBorrow(raw.Data)
	case "Transfer":
		return parseTransfer(raw.Data)
	case "NewReserveFactor":
		return parseNewReserveFactor(raw.Data)
	case "NewMarketInterestRateModel":
		return parseNewMarketInterestRateModel(raw.Data)
	case "MarketListed":
		return parseMarketListed(raw.Data)
	case "MarketEntered":
		return parseMarketEntered(raw.Data)
	case "MarketExited":
		return parseMarketExited(raw.Data)
	case "NewCloseFactor":
		return parseNewCloseFactor(raw.Data)
	case "NewCollateralFactor":
		return parseNewCollateralFactor(raw.Data)
	case "NewLiquidationIncentive":
		return parseNewLiquidationIncentive(raw.Data)
	case "NewPriceOracle":
		return parseNewPriceOracle(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the decoder that publishes them.

// rawJSON carries the log coordinates shared by every event payload.
type rawJSON struct {
	Contract    string `json:"contract"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	BlockNumber uint64 `json:"block_number"`
	BlockTime   int64  `json:"block_time"`
}

func (r rawJSON) toRaw() (event.Raw, error) {
	if !common.IsHexAddress(r.Contract) {
		return event.Raw{}, fmt.Errorf("bad contract address: %q", r.Contract)
	}
	return event.Raw{
		Contract: common.HexToAddress(r.Contract),
		Tx:       common.HexToHash(r.TxHash),
		Log:      r.LogIndex,
		Block:    r.BlockNumber,
		Time:     r.BlockTime,
	}, nil
}

func parseAddr(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("bad %s address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseBig(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad %s amount: %q", field, s)
	}
	return v, nil
}

type accrueInterestJSON struct {
	rawJSON
	CashPrior           string `json:"cash_prior"`
	InterestAccumulated string `json:"interest_accumulated"`
	BorrowIndex         string `json:"borrow_index"`
	TotalBorrows        string `json:"total_borrows"`
}

func parseAccrueInterest(data []byte) (*event.AccrueInterest, error) {
	var j accrueInterestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AccrueInterest: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	cash, err := parseBig("cash_prior", j.CashPrior)
	if err != nil {
		return nil, err
	}
	interest, err := parseBig("interest_accumulated", j.InterestAccumulated)
	if err != nil {
		return nil, err
	}
	index, err := parseBig("borrow_index", j.BorrowIndex)
	if err != nil {
		return nil, err
	}
	borrows, err := parseBig("total_borrows", j.TotalBorrows)
	if err != nil {
		return nil, err
	}
	return &event.AccrueInterest{
		Raw:                 raw,
		CashPrior:           cash,
		InterestAccumulated: interest,
		BorrowIndex:         index,
		TotalBorrows:        borrows,
	}, nil
}

type mintJSON struct {
	rawJSON
	Minter     string `json:"minter"`
	MintAmount string `json:"mint_amount"`
	MintTokens string `json:"mint_tokens"`
}

func parseMint(data []byte) (*event.Mint, error) {
	var j mintJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Mint: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	minter, err := parseAddr("minter", j.Minter)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig("mint_amount", j.MintAmount)
	if err != nil {
		return nil, err
	}
	tokens, err := parseBig("mint_tokens", j.MintTokens)
	if err != nil {
		return nil, err
	}
	return &event.Mint{
		Raw:        raw,
		Minter:     minter,
		MintAmount: amount,
		MintTokens: tokens,
	}, nil
}

type redeemJSON struct {
	rawJSON
	Redeemer     string `json:"redeemer"`
	RedeemAmount string `json:"redeem_amount"`
	RedeemTokens string `json:"redeem_tokens"`
}

func parseRedeem(data []byte) (*event.Redeem, error) {
	var j redeemJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Redeem: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	redeemer, err := parseAddr("redeemer", j.Redeemer)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig("redeem_amount", j.RedeemAmount)
	if err != nil {
		return nil, err
	}
	tokens, err := parseBig("redeem_tokens", j.RedeemTokens)
	if err != nil {
		return nil, err
	}
	return &event.Redeem{
		Raw:          raw,
		Redeemer:     redeemer,
		RedeemAmount: amount,
		RedeemTokens: tokens,
	}, nil
}

type borrowJSON struct {
	rawJSON
	Borrower       string `json:"borrower"`
	BorrowAmount   string `json:"borrow_amount"`
	AccountBorrows string `json:"account_borrows"`
	TotalBorrows   string `json:"total_borrows"`
}

func parseBorrow(data []byte) (*event.Borrow, error) {
	var j borrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Borrow: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	borrower, err := parseAddr("borrower", j.Borrower)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig("borrow_amount", j.BorrowAmount)
	if err != nil {
		return nil, err
	}
	account, err := parseBig("account_borrows", j.AccountBorrows)
	if err != nil {
		return nil, err
	}
	total, err := parseBig("total_borrows", j.TotalBorrows)
	if err != nil {
		return nil, err
	}
	return &event.Borrow{
		Raw:            raw,
		Borrower:       borrower,
		BorrowAmount:   amount,
		AccountBorrows: account,
		TotalBorrows:   total,
	}, nil
}

type repayBorrowJSON struct {
	rawJSON
	Payer          string `json:"payer"`
	Borrower       string `json:"borrower"`
	RepayAmount    string `json:"repay_amount"`
	AccountBorrows string `json:"account_borrows"`
	TotalBorrows   string `json:"total_borrows"`
}

func parseRepayBorrow(data []byte) (*event.RepayBorrow, error) {
	var j repayBorrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RepayBorrow: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	payer, err := parseAddr("payer", j.Payer)
	if err != nil {
		return nil, err
	}
	borrower, err := parseAddr("borrower", j.Borrower)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig("repay_amount", j.RepayAmount)
	if err != nil {
		return nil, err
	}
	account, err := parseBig("account_borrows", j.AccountBorrows)
	if err != nil {
		return nil, err
	}
	total, err := parseBig("total_borrows", j.TotalBorrows)
	if err != nil {
		return nil, err
	}
	return &event.RepayBorrow{
		Raw:            raw,
		Payer:          payer,
		Borrower:       borrower,
		RepayAmount:    amount,
		AccountBorrows: account,
		TotalBorrows:   total,
	}, nil
}

type liquidateBorrowJSON struct {
	rawJSON
	Liquidator      string `json:"liquidator"`
	Borrower        string `json:"borrower"`
	RepayAmount     string `json:"repay_amount"`
	TokenCollateral string `json:"token_collateral"`
	SeizeTokens     string `json:"seize_tokens"`
}

func parseLiquidateBorrow(data []byte) (*event.LiquidateBorrow, error) {
	var j liquidateBorrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidateBorrow: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	liquidator, err := parseAddr("liquidator", j.Liquidator)
	if err != nil {
		return nil, err
	}
	borrower, err := parseAddr("borrower", j.Borrower)
	if err != nil {
		return nil, err
	}
	collateral, err := parseAddr("token_collateral", j.TokenCollateral)
	if err != nil {
		return nil, err
	}
	repay, err := parseBig("repay_amount", j.RepayAmount)
	if err != nil {
		return nil, err
	}
	seize, err := parseBig("seize_tokens", j.SeizeTokens)
	if err != nil {
		return nil, err
	}
	return &event.LiquidateBorrow{
		Raw:             raw,
		Liquidator:      liquidator,
		Borrower:        borrower,
		RepayAmount:     repay,
		TokenCollateral: collateral,
		SeizeTokens:     seize,
	}, nil
}

type transferJSON struct {
	rawJSON
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func parseTransfer(data []byte) (*event.Transfer, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Transfer: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	from, err := parseAddr("from", j.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddr("to", j.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.Transfer{
		Raw:    raw,
		From:   from,
		To:     to,
		Amount: amount,
	}, nil
}

type newReserveFactorJSON struct {
	rawJSON
	NewReserveFactorMantissa string `json:"new_reserve_factor_mantissa"`
}

func parseNewReserveFactor(data []byte) (*event.NewReserveFactor, error) {
	var j newReserveFactorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NewReserveFactor: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	mantissa, err := parseBig("new_reserve_factor_mantissa", j.NewReserveFactorMantissa)
	if err != nil {
		return nil, err
	}
	return &event.NewReserveFactor{Raw: raw, NewReserveFactorMantissa: mantissa}, nil
}

type newRateModelJSON struct {
	rawJSON
	NewInterestRateModel string `json:"new_interest_rate_model"`
}

func parseNewMarketInterestRateModel(data []byte) (*event.NewMarketInterestRateModel, error) {
	var j newRateModelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NewMarketInterestRateModel: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	model, err := parseAddr("new_interest_rate_model", j.NewInterestRateModel)
	if err != nil {
		return nil, err
	}
	return &event.NewMarketInterestRateModel{Raw: raw, NewInterestRateModel: model}, nil
}

type marketListedJSON struct {
	rawJSON
	Token string `json:"token"`
}

func parseMarketListed(data []byte) (*event.MarketListed, error) {
	var j marketListedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketListed: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	token, err := parseAddr("token", j.Token)
	if err != nil {
		return nil, err
	}
	return &event.MarketListed{Raw: raw, Token: token}, nil
}

type membershipJSON struct {
	rawJSON
	Token   string `json:"token"`
	Account string `json:"account"`
}

func parseMarketEntered(data []byte) (*event.MarketEntered, error) {
	var j membershipJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketEntered: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	token, err := parseAddr("token", j.Token)
	if err != nil {
		return nil, err
	}
	account, err := parseAddr("account", j.Account)
	if err != nil {
		return nil, err
	}
	return &event.MarketEntered{Raw: raw, Token: token, Account: account}, nil
}

func parseMarketExited(data []byte) (*event.MarketExited, error) {
	var j membershipJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MarketExited: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	token, err := parseAddr("token", j.Token)
	if err != nil {
		return nil, err
	}
	account, err := parseAddr("account", j.Account)
	if err != nil {
		return nil, err
	}
	return &event.MarketExited{Raw: raw, Token: token, Account: account}, nil
}

type newCloseFactorJSON struct {
	rawJSON
	NewCloseFactorMantissa string `json:"new_close_factor_mantissa"`
}

func parseNewCloseFactor(data []byte) (*event.NewCloseFactor, error) {
	var j newCloseFactorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NewCloseFactor: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	mantissa, err := parseBig("new_close_factor_mantissa", j.NewCloseFactorMantissa)
	if err != nil {
		return nil, err
	}
	return &event.NewCloseFactor{Raw: raw, NewCloseFactorMantissa: mantissa}, nil
}

type newCollateralFactorJSON struct {
	rawJSON
	Token                       string `json:"token"`
	NewCollateralFactorMantissa string `json:"new_collateral_factor_mantissa"`
}

func parseNewCollateralFactor(data []byte) (*event.NewCollateralFactor, error) {
	var j newCollateralFactorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NewCollateralFactor: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	token, err := parseAddr("token", j.Token)
	if err != nil {
		return nil, err
	}
	mantissa, err := parseBig("new_collateral_factor_mantissa", j.NewCollateralFactorMantissa)
	if err != nil {
		return nil, err
	}
	return &event.NewCollateralFactor{
		Raw:                         raw,
		Token:                       token,
		NewCollateralFactorMantissa: mantissa,
	}, nil
}

type newLiquidationIncentiveJSON struct {
	rawJSON
	NewLiquidationIncentiveMantissa string `json:"new_liquidation_incentive_mantissa"`
}

func parseNewLiquidationIncentive(data []byte) (*event.NewLiquidationIncentive, error) {
	var j newLiquidationIncentiveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NewLiquidationIncentive: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	mantissa, err := parseBig("new_liquidation_incentive_mantissa", j.NewLiquidationIncentiveMantissa)
	if err != nil {
		return nil, err
	}
	return &event.NewLiquidationIncentive{Raw: raw, NewLiquidationIncentiveMantissa: mantissa}, nil
}

type newPriceOracleJSON struct {
	rawJSON
	Oracle string `json:"oracle"`
}

func parseNewPriceOracle(data []byte) (*event.NewPriceOracle, error) {
	var j newPriceOracleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NewPriceOracle: %w", err)
	}
	raw, err := j.toRaw()
	if err != nil {
		return nil, err
	}
	oracle, err := parseAddr("oracle", j.Oracle)
	if err != nil {
		return nil, err
	}
	return &event.NewPriceOracle{Raw: raw, Oracle: oracle}, nil
}
