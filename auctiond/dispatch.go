package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engineapi"
)

func decode[T any](data []byte) (T, error) {
	var req T
	if err := json.Unmarshal(data, &req); err != nil {
		return req, core.Validationf("decode request: %v", err)
	}
	return req, nil
}

// dispatch routes a request to the engine. The returned response carries
// only the payload fields; handle fills in the envelope.
func (s *Server) dispatch(ctx context.Context, typ string, data []byte) (engineapi.Response, error) {
	switch typ {
	case engineapi.TypePing:
		return engineapi.Response{Message: "auction server is healthy"}, nil

	case engineapi.TypeCreateAuction:
		req, err := decode[engineapi.CreateAuctionRequest](data)
		if err != nil {
			return engineapi.Response{}, err
		}
		id, err := s.engine.CreateAuction(ctx, req.Caller, req.Params())
		return engineapi.Response{AuctionID: id}, err

	case engineapi.TypePlaceBid, engineapi.TypeBuyNow, engineapi.TypeSubmitCommitment, engineapi.TypeRevealBid:
		req, err := decode[engineapi.BidRequest](data)
		if err != nil {
			return engineapi.Response{}, err
		}
		return engineapi.Response{AuctionID: req.AuctionID}, s.bid(ctx, typ, req)

	case engineapi.TypeStartReveal, engineapi.TypeSettleAuction, engineapi.TypeCancelAuction,
		engineapi.TypeEmergencyCancel, engineapi.TypeExtendAuction, engineapi.TypeClaimAsset,
		engineapi.TypeGetReceipt:
		req, err := decode[engineapi.AuctionRequest](data)
		if err != nil {
			return engineapi.Response{}, err
		}
		return s.auctionCall(ctx, typ, req)

	case engineapi.TypeUpdatePlatformFee, engineapi.TypeUpdateMinBidIncrement, engineapi.TypeUpdateMaxExtension,
		engineapi.TypePause, engineapi.TypeUnpause, engineapi.TypeWithdrawPlatformFees:
		req, err := decode[engineapi.AdminRequest](data)
		if err != nil {
			return engineapi.Response{}, err
		}
		return engineapi.Response{}, s.adminCall(ctx, typ, req)

	case engineapi.TypeWithdraw:
		req, err := decode[engineapi.Envelope](data)
		if err != nil {
			return engineapi.Response{}, err
		}
		amount, err := s.engine.Withdraw(ctx, req.Caller)
		return engineapi.Response{Amount: &amount}, err

	case engineapi.TypeReceiptKey:
		if s.notary == nil {
			return engineapi.Response{}, core.Statef("receipts are disabled")
		}
		key, err := s.notary.KeyResponse()
		if err != nil {
			return engineapi.Response{}, fmt.Errorf("receipt key: %w", err)
		}
		return engineapi.Response{Key: key}, nil

	case engineapi.TypeGetAuction, engineapi.TypeGetDescendingPrice, engineapi.TypeGetUserAuctions,
		engineapi.TypeGetUserBids, engineapi.TypeGetActiveAuctions, engineapi.TypeGetAuctionsByFormat,
		engineapi.TypeGetEndingSoon, engineapi.TypeHasUserBid, engineapi.TypeGetStats,
		engineapi.TypeGetFormatDistribution:
		req, err := decode[engineapi.QueryRequest](data)
		if err != nil {
			return engineapi.Response{}, err
		}
		return s.query(typ, req)

	default:
		return engineapi.Response{}, fmt.Errorf("%w: %q", errUnknownType, typ)
	}
}

// bid forwards a value-carrying call. In dev mode the attached value is
// taken from the caller's wallet first and returned if the engine rejects.
func (s *Server) bid(ctx context.Context, typ string, req engineapi.BidRequest) error {
	value := req.Amount
	if typ == engineapi.TypeRevealBid {
		value = decimal.Zero
	}
	debited := s.wallets != nil && value.IsPositive()
	if debited {
		if err := s.wallets.Debit(req.Caller, value); err != nil {
			return err
		}
	}

	var err error
	switch typ {
	case engineapi.TypePlaceBid:
		err = s.engine.PlaceBid(ctx, req.Caller, req.AuctionID, req.Amount)
	case engineapi.TypeBuyNow:
		err = s.engine.BuyNowDescending(ctx, req.Caller, req.AuctionID, req.Amount)
	case engineapi.TypeSubmitCommitment:
		err = s.engine.SubmitCommitment(ctx, req.Caller, req.AuctionID, req.CommitHash, req.Amount)
	case engineapi.TypeRevealBid:
		err = s.engine.RevealBid(ctx, req.Caller, req.AuctionID, req.Amount, req.Nonce)
	}

	if err != nil && debited {
		s.wallets.Credit(req.Caller, value)
	}
	return err
}

func (s *Server) auctionCall(ctx context.Context, typ string, req engineapi.AuctionRequest) (engineapi.Response, error) {
	resp := engineapi.Response{AuctionID: req.AuctionID}

	var err error
	switch typ {
	case engineapi.TypeStartReveal:
		err = s.engine.StartRevealPhase(ctx, req.Caller, req.AuctionID)
	case engineapi.TypeSettleAuction:
		var rec core.SettlementRecord
		rec, err = s.engine.SettleAuction(ctx, req.Caller, req.AuctionID)
		if err == nil {
			resp.Record = &rec
			resp.Receipt = s.receiptFor(req.AuctionID)
		}
		return resp, err
	case engineapi.TypeCancelAuction:
		err = s.engine.CancelAuction(ctx, req.Caller, req.AuctionID, req.Reason)
	case engineapi.TypeEmergencyCancel:
		err = s.engine.EmergencyCancel(ctx, req.Caller, req.AuctionID, req.Reason)
	case engineapi.TypeExtendAuction:
		err = s.engine.ExtendAuction(ctx, req.Caller, req.AuctionID, req.Seconds)
	case engineapi.TypeClaimAsset:
		err = s.engine.ClaimAsset(ctx, req.Caller, req.AuctionID)
	case engineapi.TypeGetReceipt:
		if s.notary == nil {
			return resp, core.Statef("receipts are disabled")
		}
		resp.Receipt = s.receiptFor(req.AuctionID)
		if resp.Receipt == nil {
			return resp, core.Validationf("no receipt for auction %d", req.AuctionID)
		}
		return resp, nil
	}
	if err != nil {
		return resp, err
	}

	if typ == engineapi.TypeCancelAuction || typ == engineapi.TypeEmergencyCancel {
		if rec, ok := s.engine.GetSettlementRecord(req.AuctionID); ok {
			resp.Record = &rec
		}
		resp.Receipt = s.receiptFor(req.AuctionID)
	}
	return resp, nil
}

func (s *Server) receiptFor(id uint64) *engineapi.Receipt {
	if s.notary == nil {
		return nil
	}
	r, ok := s.notary.Receipt(id)
	if !ok {
		return nil
	}
	return &r
}

func (s *Server) adminCall(ctx context.Context, typ string, req engineapi.AdminRequest) error {
	switch typ {
	case engineapi.TypeUpdatePlatformFee:
		return s.engine.UpdatePlatformFee(ctx, req.Caller, req.Bps)
	case engineapi.TypeUpdateMinBidIncrement:
		return s.engine.UpdateMinBidIncrement(ctx, req.Caller, req.Bps)
	case engineapi.TypeUpdateMaxExtension:
		return s.engine.UpdateMaxExtension(ctx, req.Caller, req.Seconds)
	case engineapi.TypePause:
		return s.engine.Pause(ctx, req.Caller)
	case engineapi.TypeUnpause:
		return s.engine.Unpause(ctx, req.Caller)
	case engineapi.TypeWithdrawPlatformFees:
		return s.engine.WithdrawPlatformFees(ctx, req.Caller, req.Recipient, req.Amount)
	}
	return fmt.Errorf("%w: %q", errUnknownType, typ)
}

func (s *Server) query(typ string, req engineapi.QueryRequest) (engineapi.Response, error) {
	principal := req.Principal
	if principal == "" {
		principal = req.Caller
	}

	switch typ {
	case engineapi.TypeGetAuction:
		a, err := s.engine.GetAuction(req.AuctionID)
		if err != nil {
			return engineapi.Response{}, err
		}
		return engineapi.Response{AuctionID: a.ID, Auction: &a}, nil
	case engineapi.TypeGetDescendingPrice:
		price, err := s.engine.GetCurrentDescendingPrice(req.AuctionID)
		if err != nil {
			return engineapi.Response{}, err
		}
		return engineapi.Response{AuctionID: req.AuctionID, Amount: &price}, nil
	case engineapi.TypeGetUserAuctions:
		return engineapi.Response{Auctions: s.engine.GetUserAuctions(principal)}, nil
	case engineapi.TypeGetUserBids:
		return engineapi.Response{Auctions: s.engine.GetUserBids(principal)}, nil
	case engineapi.TypeGetActiveAuctions:
		return engineapi.Response{Auctions: s.engine.GetActiveAuctions()}, nil
	case engineapi.TypeGetAuctionsByFormat:
		auctions, err := s.engine.GetAuctionsByFormat(req.Format)
		return engineapi.Response{Auctions: auctions}, err
	case engineapi.TypeGetEndingSoon:
		if req.WindowSeconds < 0 {
			return engineapi.Response{}, core.Validationf("window_seconds must not be negative")
		}
		window := time.Duration(req.WindowSeconds) * time.Second
		return engineapi.Response{Auctions: s.engine.GetEndingSoon(window)}, nil
	case engineapi.TypeHasUserBid:
		hasBid := s.engine.HasUserBid(req.AuctionID, principal)
		return engineapi.Response{AuctionID: req.AuctionID, HasBid: &hasBid}, nil
	case engineapi.TypeGetStats:
		stats := s.engine.GetStats()
		return engineapi.Response{Stats: &stats}, nil
	case engineapi.TypeGetFormatDistribution:
		return engineapi.Response{Distribution: s.engine.GetFormatDistribution()}, nil
	}
	return engineapi.Response{}, fmt.Errorf("%w: %q", errUnknownType, typ)
}
