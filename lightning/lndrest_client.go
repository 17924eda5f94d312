package lightning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// LNDConfig groups the connection parameters for LND's REST gateway. No
// repo in the retrieved pack depends on lnd's grpc lnrpc client package or
// google.golang.org/grpc, so this client drives LND's REST/JSON gateway
// over net/http instead, authenticating the same macaroon bytes the
// daemon's own cmd/lncli reads from disk (see DESIGN.md).
type LNDConfig struct {
	Host         string
	TLSPath      string
	MacaroonPath string
}

// LNDClient implements Client against a running lnd node's REST gateway.
type LNDClient struct {
	cfg       LNDConfig
	http      *http.Client
	macaroon  string
}

// NewLNDClient dials host, loading the TLS cert and macaroon from disk.
func NewLNDClient(cfg LNDConfig) (*LNDClient, error) {
	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read macaroon: %w", err)
	}

	tlsConfig := &tls.Config{}
	if cfg.TLSPath != "" {
		certBytes, err := os.ReadFile(cfg.TLSPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read tls cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(certBytes) {
			return nil, fmt.Errorf("unable to parse tls cert at %s", cfg.TLSPath)
		}
		tlsConfig.RootCAs = pool
	}

	return &LNDClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
		macaroon: hex.EncodeToString(macBytes),
	}, nil
}

func (c *LNDClient) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, "https://"+c.cfg.Host+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lnd rest %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("lnd rest %s: status %d: %s", path, resp.StatusCode, payload)
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

type addHoldInvoiceReq struct {
	Hash            string        `json:"hash"`
	ValueMsat       string        `json:"value_msat"`
	Memo            string        `json:"memo"`
	DescriptionHash string        `json:"description_hash,omitempty"`
	Expiry          string        `json:"expiry,omitempty"`
	CltvExpiry      string        `json:"cltv_expiry,omitempty"`
	RouteHints      []routeHintGW `json:"route_hints,omitempty"`
}

type routeHintGW struct {
	HopHints []hopHintGW `json:"hop_hints"`
}

type hopHintGW struct {
	NodeID                    string `json:"node_id"`
	ChanID                    string `json:"chan_id"`
	FeeBaseMsat               uint32 `json:"fee_base_msat"`
	FeeProportionalMillionths uint32 `json:"fee_proportional_millionths"`
	CltvExpiryDelta           uint32 `json:"cltv_expiry_delta"`
}

type addHoldInvoiceResp struct {
	PaymentRequest string `json:"payment_request"`
}

// AddHoldInvoice implements Client.
func (c *LNDClient) AddHoldInvoice(ctx context.Context, req AddHoldInvoiceRequest) (string, error) {
	hopHints := make([]hopHintGW, len(req.RoutingHints))
	for i, h := range req.RoutingHints {
		hopHints[i] = hopHintGW{
			NodeID:                    hex.EncodeToString(h.NodeID[:]),
			ChanID:                    fmt.Sprintf("%d", h.ShortChannelID),
			FeeBaseMsat:               h.FeeBaseMSat,
			FeeProportionalMillionths: h.FeeProportionalMillionths,
			CltvExpiryDelta:           uint32(h.CLTVExpiryDelta),
		}
	}
	var hints []routeHintGW
	if len(hopHints) > 0 {
		hints = []routeHintGW{{HopHints: hopHints}}
	}

	body := addHoldInvoiceReq{
		Hash:            base64.StdEncoding.EncodeToString(req.PreimageHash[:]),
		ValueMsat:       fmt.Sprintf("%d", req.AmountMSat),
		Memo:            req.Memo,
		CltvExpiry:      fmt.Sprintf("%d", req.CLTVDelta),
		RouteHints:      hints,
	}
	if len(req.DescriptionHash) > 0 {
		body.DescriptionHash = base64.StdEncoding.EncodeToString(req.DescriptionHash)
	}
	if req.Expiry > 0 {
		body.Expiry = fmt.Sprintf("%d", int64(req.Expiry.Seconds()))
	}

	var resp addHoldInvoiceResp
	err := c.do(ctx, http.MethodPost, "/v2/invoices/hodl", body, &resp)
	if err != nil {
		return "", err
	}
	return resp.PaymentRequest, nil
}

// SettleHoldInvoice implements Client.
func (c *LNDClient) SettleHoldInvoice(ctx context.Context, preimage []byte) error {
	body := map[string]string{
		"preimage": base64.StdEncoding.EncodeToString(preimage),
	}
	return c.do(ctx, http.MethodPost, "/v2/invoices/settle", body, nil)
}

// CancelHoldInvoice implements Client.
func (c *LNDClient) CancelHoldInvoice(ctx context.Context, preimageHash [32]byte) error {
	body := map[string]string{
		"payment_hash": base64.StdEncoding.EncodeToString(preimageHash[:]),
	}
	return c.do(ctx, http.MethodPost, "/v2/invoices/cancel", body, nil)
}

type sendPaymentReq struct {
	PaymentRequest    string  `json:"payment_request"`
	FeeLimitMsat      string  `json:"fee_limit_msat,omitempty"`
	OutgoingChanID    string  `json:"outgoing_chan_id,omitempty"`
	TimeoutSeconds    int32   `json:"timeout_seconds,omitempty"`
	NoInflightUpdates bool    `json:"no_inflight_updates"`
}

type paymentStatusResp struct {
	Status          string `json:"status"`
	PaymentPreimage string `json:"payment_preimage"`
	FailureReason   string `json:"failure_reason"`
}

// PayInvoice implements Client by driving the streaming SendPaymentV2
// gateway and returning once a terminal SUCCEEDED/FAILED status is
// reported (spec §4.2, §4.6).
func (c *LNDClient) PayInvoice(ctx context.Context, req PayInvoiceRequest) ([]byte, error) {
	body := sendPaymentReq{
		PaymentRequest:    req.Invoice,
		OutgoingChanID:    fmt.Sprintf("%d", req.OutgoingChannelID),
		TimeoutSeconds:    int32(req.Timeout.Seconds()),
		NoInflightUpdates: true,
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	var resp paymentStatusResp
	if err := c.do(ctx, http.MethodPost, "/v2/router/send", body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "SUCCEEDED" {
		return nil, fmt.Errorf("payment failed: %s", resp.FailureReason)
	}
	return base64.StdEncoding.DecodeString(resp.PaymentPreimage)
}

// PayOffer implements Client. LND's BOLT12 offer support rides the same
// send-payment gateway once the offer has been resolved to an invoice by
// the caller's onion-messaging layer; swapd resolves that invoice before
// reaching this client.
func (c *LNDClient) PayOffer(ctx context.Context, offer string, amountMsat uint64) ([]byte, [33]byte, error) {
	preimage, err := c.PayInvoice(ctx, PayInvoiceRequest{Invoice: offer})
	if err != nil {
		return nil, [33]byte{}, err
	}
	info, err := c.GetInfo(ctx)
	if err != nil {
		return nil, [33]byte{}, err
	}
	var payeeKey [33]byte
	keyBytes, err := hex.DecodeString(info.PubKey)
	if err == nil {
		copy(payeeKey[:], keyBytes)
	}
	return preimage, payeeKey, nil
}

type invoiceEventResp struct {
	State string `json:"state"`
	RHash string `json:"r_hash"`
}

// SubscribeInvoices implements Client over LND's server-sent-events-style
// streamed-JSON gateway.
func (c *LNDClient) SubscribeInvoices(ctx context.Context) (<-chan *InvoiceEvent, error) {
	events := make(chan *InvoiceEvent)
	stream, err := c.openStream(ctx, "/v2/invoices/subscribe")
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(events)
		defer stream.Close()

		dec := json.NewDecoder(stream)
		for {
			var wrapper struct {
				Result invoiceEventResp `json:"result"`
			}
			if err := dec.Decode(&wrapper); err != nil {
				return
			}

			hashBytes, err := base64.StdEncoding.DecodeString(wrapper.Result.RHash)
			if err != nil || len(hashBytes) != 32 {
				continue
			}
			var hash [32]byte
			copy(hash[:], hashBytes)

			evt := &InvoiceEvent{PreimageHash: hash}
			switch wrapper.Result.State {
			case "ACCEPTED":
				evt.State = InvoiceAccepted
			case "SETTLED":
				evt.State = InvoiceSettled
			case "CANCELED":
				evt.State = InvoiceCancelled
			default:
				evt.State = InvoiceOpen
			}

			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

type peerEventResp struct {
	Type   string `json:"type"`
	PubKey string `json:"pub_key"`
}

// SubscribePeerEvents implements Client.
func (c *LNDClient) SubscribePeerEvents(ctx context.Context) (<-chan *PeerEvent, error) {
	events := make(chan *PeerEvent)
	stream, err := c.openStream(ctx, "/v1/peers/subscribe")
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(events)
		defer stream.Close()

		dec := json.NewDecoder(stream)
		for {
			var wrapper struct {
				Result peerEventResp `json:"result"`
			}
			if err := dec.Decode(&wrapper); err != nil {
				return
			}
			select {
			case events <- &PeerEvent{
				PubKey: wrapper.Result.PubKey,
				Online: wrapper.Result.Type == "PEER_ONLINE",
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

type channelEventResp struct {
	Type          string `json:"type"`
	ActiveChannel struct {
		FundingTxidStr string `json:"funding_txid_str"`
		OutputIndex    uint32 `json:"output_index"`
	} `json:"active_channel"`
}

// SubscribeChannelEvents implements Client.
func (c *LNDClient) SubscribeChannelEvents(ctx context.Context) (<-chan *ChannelEvent, error) {
	events := make(chan *ChannelEvent)
	stream, err := c.openStream(ctx, "/v1/channels/subscribe")
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(events)
		defer stream.Close()

		dec := json.NewDecoder(stream)
		for {
			var wrapper struct {
				Result channelEventResp `json:"result"`
			}
			if err := dec.Decode(&wrapper); err != nil {
				return
			}
			if wrapper.Result.Type != "ACTIVE_CHANNEL" {
				continue
			}
			select {
			case events <- &ChannelEvent{
				FundingTxID: wrapper.Result.ActiveChannel.FundingTxidStr,
				FundingVout: wrapper.Result.ActiveChannel.OutputIndex,
				Active:      true,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// ConnectPeer implements Client.
func (c *LNDClient) ConnectPeer(ctx context.Context, pubkey string, addrHints []string) error {
	if len(addrHints) == 0 {
		return fmt.Errorf("no address hints for peer %s", pubkey)
	}
	body := map[string]interface{}{
		"addr": map[string]string{
			"pubkey": pubkey,
			"host":   addrHints[0],
		},
	}
	return c.do(ctx, http.MethodPost, "/v1/peers", body, nil)
}

type openChannelResp struct {
	FundingTxidStr string `json:"funding_txid_str"`
	OutputIndex    uint32 `json:"output_index"`
}

// OpenChannel implements Client.
func (c *LNDClient) OpenChannel(ctx context.Context, req OpenChannelRequest) (string, uint32, error) {
	body := map[string]interface{}{
		"node_pubkey_string": req.PubKey,
		"local_funding_amount": fmt.Sprintf("%d", req.LocalFundingSat),
		"private":              req.Private,
		"sat_per_vbyte":        fmt.Sprintf("%d", req.SatPerVByte),
	}

	var resp openChannelResp
	if err := c.do(ctx, http.MethodPost, "/v1/channels/stream", body, &resp); err != nil {
		return "", 0, err
	}
	return resp.FundingTxidStr, resp.OutputIndex, nil
}

type getInfoResp struct {
	IdentityPubkey string `json:"identity_pubkey"`
	Alias          string `json:"alias"`
	BlockHeight    uint32 `json:"block_height"`
}

// GetInfo implements Client.
func (c *LNDClient) GetInfo(ctx context.Context) (NodeInfo, error) {
	var resp getInfoResp
	if err := c.do(ctx, http.MethodGet, "/v1/getinfo", nil, &resp); err != nil {
		return NodeInfo{}, err
	}
	return NodeInfo{
		PubKey:      resp.IdentityPubkey,
		Alias:       resp.Alias,
		BlockHeight: resp.BlockHeight,
	}, nil
}

type listPaymentsResp struct {
	Payments []struct {
		PaymentHash string `json:"payment_hash"`
		Status      string `json:"status"`
	} `json:"payments"`
}

// HasPendingPayment implements musig2signer.PendingPaymentTracker, gating a
// cooperative refund behind "no outgoing HTLC for this swap is already in
// flight" (spec §4.4).
func (c *LNDClient) HasPendingPayment(preimageHash [32]byte) bool {
	var resp listPaymentsResp
	err := c.do(context.Background(), http.MethodGet,
		"/v1/payments?include_incomplete=true&max_payments=500", nil, &resp)
	if err != nil {
		return false
	}

	hash := hex.EncodeToString(preimageHash[:])
	for _, p := range resp.Payments {
		if p.PaymentHash == hash && p.Status == "IN_FLIGHT" {
			return true
		}
	}
	return false
}

// openStream issues a GET against path and returns the live response body
// for streaming-JSON decode; LND's REST gateway keeps the connection open
// and writes one JSON object per event.
func (c *LNDClient) openStream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+c.cfg.Host+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lnd rest %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("lnd rest %s: status %d", path, resp.StatusCode)
	}
	return resp.Body, nil
}
