// Package api implements the HTTP surface described in spec §6: creating
// and inspecting swaps, submitting cooperative refund/claim signatures,
// and upgrading to the Event Bus WebSocket stream.
package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/gorilla/mux"

	"github.com/lightninglabs/swapd/chainswap"
	"github.com/lightninglabs/swapd/eventbus"
	"github.com/lightninglabs/swapd/internal/zpay32"
	"github.com/lightninglabs/swapd/musig2signer"
	"github.com/lightninglabs/swapd/reverseswap"
	"github.com/lightninglabs/swapd/swap"
	"github.com/lightninglabs/swapd/swapdb"
	"github.com/lightninglabs/swapd/swaperrors"
)

// Server wires the swap managers and the Event Bus onto an HTTP mux,
// mirroring the daemon's original practice of a thin RPC layer delegating
// straight into its subsystem managers.
type Server struct {
	Store     *swapdb.DB
	Submarine *swap.Manager
	Reverse   *reverseswap.Manager
	ChainSwap *chainswap.Manager
	Musig2    *musig2signer.Signer
	Bus       *eventbus.Bus

	// CurrentHeight returns the chain backend's current block height,
	// used to derive each new swap's absolute timeout height from its
	// pair's configured delta (spec §3 TimeoutDeltas).
	CurrentHeight func() (uint32, error)
}

// Router builds the *mux.Router serving every endpoint in spec §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/swap/submarine", s.createSubmarine).Methods(http.MethodPost)
	r.HandleFunc("/swap/submarine/{id}/refund", s.refundSubmarine).Methods(http.MethodPost)
	r.HandleFunc("/swap/submarine/{id}/claim", s.claimSubmarine).Methods(http.MethodPost)

	r.HandleFunc("/swap/reverse", s.createReverse).Methods(http.MethodPost)
	r.HandleFunc("/swap/reverse/{id}/claim", s.claimReverse).Methods(http.MethodPost)

	r.HandleFunc("/swap/chain", s.createChainSwap).Methods(http.MethodPost)

	r.HandleFunc("/swap/{id}", s.getSwap).Methods(http.MethodGet)
	r.HandleFunc("/swap/{id}/stream", s.streamSwap).Methods(http.MethodGet)

	return r
}

type createSubmarineRequest struct {
	From             string `json:"from"`
	To               string `json:"to"`
	Invoice          string `json:"invoice"`
	RefundPublicKey  string `json:"refundPublicKey"`
	ReferralID       string `json:"referralId"`
}

type createSubmarineResponse struct {
	ID                 string `json:"id"`
	Address            string `json:"address"`
	ClaimPublicKey     string `json:"claimPublicKey"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
	ExpectedAmount     uint64 `json:"expectedAmount"`
	AcceptZeroConf     bool   `json:"acceptZeroConf"`
}

func (s *Server) createSubmarine(w http.ResponseWriter, r *http.Request) {
	var req createSubmarineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "malformed body: %v", err))
		return
	}

	refundPub, err := parsePubKey(req.RefundPublicKey)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid refundPublicKey: %v", err))
		return
	}

	invoice, err := zpay32.Decode(req.Invoice)
	if err != nil || invoice.PaymentHash == nil || invoice.MilliSat == nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid invoice: %v", err))
		return
	}

	height, err := s.CurrentHeight()
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.Wrap(swaperrors.CodeInternal, err))
		return
	}

	result, err := s.Submarine.CreateSwap(r.Context(), swap.CreateRequest{
		From:               req.From,
		To:                 req.To,
		Invoice:            req.Invoice,
		PreimageHash:       *invoice.PaymentHash,
		InvoiceAmountSat:   *invoice.MilliSat / 1000,
		RefundPublicKey:    refundPub,
		ReferralID:         req.ReferralID,
		CurrentBlockHeight: height,
	})
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSubmarineResponse{
		ID:                 result.ID,
		Address:            result.Address,
		ClaimPublicKey:     hex.EncodeToString(result.ClaimPublicKey.SerializeCompressed()),
		TimeoutBlockHeight: result.TimeoutBlockHeight,
		ExpectedAmount:     result.ExpectedAmount,
		AcceptZeroConf:     result.AcceptZeroConf,
	})
}

type refundRequest struct {
	ClientPubNonce string `json:"clientPubNonce"`
	TransactionHex string `json:"transactionHex"`
	InputIndex     int    `json:"inputIndex"`
}

type refundResponse struct {
	ServicePubNonce string `json:"servicePubNonce"`
	PartialSig      string `json:"partialSig"`
}

func (s *Server) refundSubmarine(w http.ResponseWriter, r *http.Request) {
	swapID := mux.Vars(r)["id"]

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "malformed body: %v", err))
		return
	}

	var clientNonce [66]byte
	if err := decodeFixed(req.ClientPubNonce, clientNonce[:]); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid clientPubNonce: %v", err))
		return
	}

	tx, err := decodeTx(req.TransactionHex)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid transactionHex: %v", err))
		return
	}

	servicePubNonce, partialSig, err := s.Musig2.SignSwapRefund(swapID, clientNonce, tx, req.InputIndex)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refundResponse{
		ServicePubNonce: hex.EncodeToString(servicePubNonce[:]),
		PartialSig:      hex.EncodeToString(partialSig),
	})
}

type submarineClaimRequest struct {
	ClientPubNonce string `json:"clientPubNonce"`
	TransactionHex string `json:"transactionHex"`
	InputIndex     int    `json:"inputIndex"`
}

type submarineClaimResponse struct {
	ServicePubNonce string `json:"servicePubNonce"`
	PartialSig      string `json:"partialSig"`
}

// claimSubmarine cosigns the client's cooperative key-path claim of a
// submarine swap's lockup (spec §4.6 "Claim path"). The partial signature
// handed back is the atomic commit point for the cooperative race: once
// it's returned, the swap is considered claimed and the Timeout Watcher's
// script-fallback is disarmed, the same way SignReverseSwapClaim commits
// by settling the hold invoice.
func (s *Server) claimSubmarine(w http.ResponseWriter, r *http.Request) {
	swapID := mux.Vars(r)["id"]

	var req submarineClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "malformed body: %v", err))
		return
	}

	var clientNonce [66]byte
	if err := decodeFixed(req.ClientPubNonce, clientNonce[:]); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid clientPubNonce: %v", err))
		return
	}

	tx, err := decodeTx(req.TransactionHex)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid transactionHex: %v", err))
		return
	}

	servicePubNonce, partialSig, err := s.Musig2.SignSwapClaim(swapID, clientNonce, tx, req.InputIndex)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	if err := s.Submarine.FinalizeCooperativeClaim(swapID); err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submarineClaimResponse{
		ServicePubNonce: hex.EncodeToString(servicePubNonce[:]),
		PartialSig:      hex.EncodeToString(partialSig),
	})
}

type createReverseRequest struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	InvoiceAmountSat   uint64 `json:"invoiceAmount"`
	ClaimPublicKey     string `json:"claimPublicKey"`
	ReferralID         string `json:"referralId"`
	PrepayMinerFeeSat  uint64 `json:"prepayMinerFee"`
}

type createReverseResponse struct {
	ID                 string `json:"id"`
	Invoice            string `json:"invoice"`
	PrepayInvoice      string `json:"prepayInvoice,omitempty"`
	LockupAddress      string `json:"lockupAddress"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
	OnchainAmount      uint64 `json:"onchainAmount"`
}

func (s *Server) createReverse(w http.ResponseWriter, r *http.Request) {
	var req createReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "malformed body: %v", err))
		return
	}

	claimPub, err := parsePubKey(req.ClaimPublicKey)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid claimPublicKey: %v", err))
		return
	}

	height, err := s.CurrentHeight()
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.Wrap(swaperrors.CodeInternal, err))
		return
	}

	result, err := s.Reverse.CreateSwap(r.Context(), reverseswap.CreateRequest{
		From:               req.From,
		To:                 req.To,
		InvoiceAmountSat:   req.InvoiceAmountSat,
		ClaimPublicKey:     claimPub,
		ReferralID:         req.ReferralID,
		PrepayMinerFeeSat:  req.PrepayMinerFeeSat,
		CurrentBlockHeight: height,
	})
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createReverseResponse{
		ID:                 result.ID,
		Invoice:            result.Invoice,
		PrepayInvoice:      result.PrepayInvoice,
		LockupAddress:      result.LockupAddress,
		TimeoutBlockHeight: result.TimeoutBlockHeight,
		OnchainAmount:      result.OnchainAmount,
	})
}

type claimRequest struct {
	Preimage       string `json:"preimage"`
	ClientPubNonce string `json:"clientPubNonce"`
	TransactionHex string `json:"transactionHex"`
	InputIndex     int    `json:"inputIndex"`
}

type claimResponse struct {
	PartialSig string `json:"partialSig"`
}

func (s *Server) claimReverse(w http.ResponseWriter, r *http.Request) {
	swapID := mux.Vars(r)["id"]

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "malformed body: %v", err))
		return
	}

	preimage, err := hex.DecodeString(req.Preimage)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid preimage: %v", err))
		return
	}

	var clientNonce [66]byte
	if err := decodeFixed(req.ClientPubNonce, clientNonce[:]); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid clientPubNonce: %v", err))
		return
	}

	tx, err := decodeTx(req.TransactionHex)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid transactionHex: %v", err))
		return
	}

	partialSig, err := s.Musig2.SignReverseSwapClaim(r.Context(), swapID, preimage, clientNonce, tx, req.InputIndex)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{PartialSig: hex.EncodeToString(partialSig)})
}

type createChainSwapRequest struct {
	From            string `json:"from"`
	To              string `json:"to"`
	UserAmount      uint64 `json:"userAmount"`
	ServerAmount    uint64 `json:"serverAmount"`
	ClaimPublicKey  string `json:"claimPublicKey"`
	RefundPublicKey string `json:"refundPublicKey"`
	ReferralID      string `json:"referralId"`
}

type createChainSwapResponse struct {
	ID                 string `json:"id"`
	UserLockupAddress  string `json:"userLockupAddress"`
	TimeoutBlockHeight uint32 `json:"timeoutBlockHeight"`
	ServerAmount       uint64 `json:"serverAmount"`
}

func (s *Server) createChainSwap(w http.ResponseWriter, r *http.Request) {
	var req createChainSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "malformed body: %v", err))
		return
	}

	claimPub, err := parsePubKey(req.ClaimPublicKey)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid claimPublicKey: %v", err))
		return
	}
	refundPub, err := parsePubKey(req.RefundPublicKey)
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeInvalidRequest, "invalid refundPublicKey: %v", err))
		return
	}

	height, err := s.CurrentHeight()
	if err != nil {
		swaperrors.WriteJSON(w, swaperrors.Wrap(swaperrors.CodeInternal, err))
		return
	}

	result, err := s.ChainSwap.CreateSwap(r.Context(), chainswap.CreateRequest{
		From:               req.From,
		To:                 req.To,
		UserAmount:         req.UserAmount,
		ServerAmount:       req.ServerAmount,
		ClaimPublicKey:     claimPub,
		RefundPublicKey:    refundPub,
		ReferralID:         req.ReferralID,
		CurrentBlockHeight: height,
	})
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createChainSwapResponse{
		ID:                 result.ID,
		UserLockupAddress:  result.UserLockupAddress,
		TimeoutBlockHeight: result.TimeoutBlockHeight,
		ServerAmount:       result.ServerAmount,
	})
}

type swapStatusResponse struct {
	ID     string            `json:"id"`
	Status swapdb.SwapStatus `json:"status"`
}

func (s *Server) getSwap(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if swp, err := s.Store.FetchSwap(id); err == nil {
		writeJSON(w, http.StatusOK, swapStatusResponse{ID: swp.ID, Status: swp.Status})
		return
	}
	if rs, err := s.Store.FetchReverseSwap(id); err == nil {
		writeJSON(w, http.StatusOK, swapStatusResponse{ID: rs.ID, Status: rs.Status})
		return
	}
	if cs, err := s.Store.FetchChainSwap(id); err == nil {
		writeJSON(w, http.StatusOK, swapStatusResponse{ID: cs.ID, Status: cs.Status})
		return
	}

	swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeSwapNotFound, "swap %s not found", id))
}

func (s *Server) streamSwap(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Bus.ServeWS(w, r, id); err != nil {
		log.Debugf("eventbus stream for swap %s ended: %v", id, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeManagerError maps a manager-level sentinel error onto the
// swaperrors envelope; anything unrecognized becomes an internal error
// rather than leaking its message verbatim.
func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, swap.ErrAmountOutOfRange):
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeAmountOutOfRange, "%v", err))
	case errors.Is(err, swapdb.ErrSwapNotFound),
		errors.Is(err, swapdb.ErrReverseSwapNotFound),
		errors.Is(err, swapdb.ErrChainSwapNotFound):
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeSwapNotFound, "%v", err))
	case errors.Is(err, swapdb.ErrIllegalTransition):
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeIllegalStatus, "%v", err))
	case errors.Is(err, musig2signer.ErrNotEligibleForRefund),
		errors.Is(err, musig2signer.ErrNotEligibleForClaim):
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeIllegalStatus, "%v", err))
	case errors.Is(err, musig2signer.ErrPreimageMismatch):
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeRefundSignatureInvalid, "%v", err))
	case errors.Is(err, musig2signer.ErrInvoiceNotHeld):
		swaperrors.WriteJSON(w, swaperrors.New(swaperrors.CodeIllegalStatus, "%v", err))
	default:
		swaperrors.WriteJSON(w, swaperrors.Wrap(swaperrors.CodeInternal, err))
	}
}

func parsePubKey(s string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(raw)
}

func decodeFixed(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

func decodeTx(s string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
