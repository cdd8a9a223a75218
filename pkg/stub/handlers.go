package stub

import (
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/clob"
	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/order"
)

const maxOrderBody = 64 << 10

// Error payloads. The order-signature one matches what the live exchange
// returns byte for byte.
const (
	errInvalidL1      = "Invalid L1 Request headers"
	errUnauthorized   = "Unauthorized/Invalid api key"
	errInvalidSig     = "invalid signature"
	errInvalidPayload = "invalid order payload"
	errOwnerMismatch  = "the order owner has to be the owner of the API KEY"
	errMarketNotFound = "market not found"
	errInvalidMaker   = "invalid maker for signature type"
	errInvalidFee     = "invalid fee rate"
)

func (s *Server) handleDeriveAPIKey(w http.ResponseWriter, r *http.Request) {
	s.count(func(c *Counters) { c.Derive++ })

	addrHex := r.Header.Get(auth.HeaderL1Address)
	ts := r.Header.Get(auth.HeaderL1Timestamp)
	nonce, err := strconv.ParseUint(r.Header.Get(auth.HeaderL1Nonce), 10, 64)
	if !common.IsHexAddress(addrHex) || err != nil {
		respondError(w, http.StatusUnauthorized, errInvalidL1)
		return
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || !s.withinSkew(time.Unix(sec, 0)) {
		respondError(w, http.StatusUnauthorized, errInvalidL1)
		return
	}
	sig, err := hexutil.Decode(r.Header.Get(auth.HeaderL1Signature))
	if err != nil {
		respondError(w, http.StatusUnauthorized, errInvalidL1)
		return
	}

	addr := common.HexToAddress(addrHex)
	e := crypto.NewEIP712Signer(crypto.ClobAuthDomain(s.opts.ChainID))
	hash, err := e.HashClobAuth(addr, ts, nonce)
	if err != nil {
		respondError(w, http.StatusUnauthorized, errInvalidL1)
		return
	}
	if got, err := crypto.RecoverAddress(hash, sig); err != nil || got != addr {
		respondError(w, http.StatusUnauthorized, errInvalidL1)
		return
	}

	it, err := s.issue(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not issue credentials")
		return
	}
	s.logger.Info("stub_credentials_issued", zap.String("address", addr.Hex()), zap.String("api_key", it.creds.KeyPrefix()))

	respondJSON(w, http.StatusOK, map[string]string{
		"apiKey":     it.creds.APIKey,
		"secret":     it.creds.Secret.Expose(),
		"passphrase": it.creds.Passphrase.Expose(),
	})
}

func (s *Server) handleTickSize(w http.ResponseWriter, r *http.Request) {
	if m, ok := s.metadataMarket(w, r); ok {
		respondJSON(w, http.StatusOK, clob.TickSizeBody(m.TickSize))
	}
}

func (s *Server) handleNegRisk(w http.ResponseWriter, r *http.Request) {
	if m, ok := s.metadataMarket(w, r); ok {
		respondJSON(w, http.StatusOK, clob.NegRiskBody(m.NegRisk))
	}
}

func (s *Server) handleFeeRate(w http.ResponseWriter, r *http.Request) {
	if m, ok := s.metadataMarket(w, r); ok {
		respondJSON(w, http.StatusOK, clob.FeeRateBody(m.FeeRateBps))
	}
}

func (s *Server) metadataMarket(w http.ResponseWriter, r *http.Request) (Market, bool) {
	s.count(func(c *Counters) { c.Metadata++ })

	tokenID := r.URL.Query().Get("token_id")
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "missing token_id")
		return Market{}, false
	}
	m, ok := s.market(tokenID)
	if !ok {
		respondError(w, http.StatusNotFound, errMarketNotFound)
		return Market{}, false
	}
	return m, true
}

func (s *Server) handlePostOrder(w http.ResponseWriter, r *http.Request) {
	s.count(func(c *Counters) { c.Orders++ })

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOrderBody))
	if err != nil {
		s.reject(w, http.StatusBadRequest, errInvalidPayload)
		return
	}

	it, ok := s.verifyL2(r, body)
	if !ok {
		s.reject(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	env, err := order.DecodeEnvelope(body)
	if err != nil {
		s.reject(w, http.StatusBadRequest, errInvalidPayload)
		return
	}
	if env.Owner != it.creds.APIKey {
		s.reject(w, http.StatusBadRequest, errOwnerMismatch)
		return
	}
	typed, sig, err := env.Order.Typed()
	if err != nil {
		s.reject(w, http.StatusBadRequest, errInvalidPayload)
		return
	}
	m, ok := s.market(typed.TokenID.String())
	if !ok {
		s.reject(w, http.StatusBadRequest, errMarketNotFound)
		return
	}

	domain, err := crypto.ExchangeDomain(s.opts.ChainID, m.NegRisk)
	if err != nil {
		s.reject(w, http.StatusInternalServerError, err.Error())
		return
	}
	e := crypto.NewEIP712Signer(domain)
	hash, err := e.HashOrder(typed)
	if err != nil {
		s.reject(w, http.StatusBadRequest, errInvalidPayload)
		return
	}
	signer, err := crypto.RecoverAddress(hash, sig)
	if err != nil || signer != typed.Signer || signer != it.address {
		s.reject(w, http.StatusBadRequest, errInvalidSig)
		return
	}
	if !makerAllowed(typed) {
		s.reject(w, http.StatusBadRequest, errInvalidMaker)
		return
	}
	if typed.FeeRateBps.Int64() != m.FeeRateBps {
		s.reject(w, http.StatusBadRequest, errInvalidFee)
		return
	}

	accepted := AcceptedOrder{
		OrderID:       hexutil.Encode(hash),
		Owner:         env.Owner,
		Maker:         env.Order.Maker,
		Signer:        env.Order.Signer,
		TokenID:       env.Order.TokenID,
		Side:          env.Order.Side,
		MakerAmt:      env.Order.MakerAmount,
		TakerAmt:      env.Order.TakerAmount,
		AuthTimestamp: r.Header.Get(auth.HeaderTimestamp),
		Body:          body,
		ReceivedAt:    s.opts.Clock.Now(),
	}
	s.mu.Lock()
	s.orders = append(s.orders, accepted)
	s.mu.Unlock()

	s.hub.Broadcast(OrderEvent{Type: "order", Order: accepted})
	s.logger.Info("stub_order_accepted", zap.String("order_id", accepted.OrderID), zap.String("side", accepted.Side))

	respondJSON(w, http.StatusOK, clob.OrderAck{Success: true, OrderID: accepted.OrderID, Status: "live"})
}

// verifyL2 checks the HMAC headers against the exact received body.
func (s *Server) verifyL2(r *http.Request, body []byte) (*issued, bool) {
	it, ok := s.lookupKey(r.Header.Get(auth.HeaderAPIKey))
	if !ok {
		return nil, false
	}
	if !hmac.Equal([]byte(r.Header.Get(auth.HeaderPassphrase)), []byte(it.creds.Passphrase.Expose())) {
		return nil, false
	}
	ts := r.Header.Get(auth.HeaderTimestamp)
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || !s.withinSkew(time.UnixMilli(ms)) {
		return nil, false
	}
	want := auth.ComputeSignature(it.key, ts, r.Method, r.URL.Path, body)
	if !hmac.Equal([]byte(r.Header.Get(auth.HeaderSignature)), []byte(want)) {
		return nil, false
	}
	return it, true
}

func (s *Server) withinSkew(t time.Time) bool {
	d := s.opts.Clock.Now().Sub(t)
	return d <= s.opts.MaxSkew && d >= -s.opts.MaxSkew
}

// makerAllowed ties the funder to the signer according to the signature type.
func makerAllowed(o *crypto.Order) bool {
	switch o.SignatureType {
	case crypto.SignatureEOA:
		return o.Maker == o.Signer
	case crypto.SignatureGnosisSafe:
		return o.Maker == crypto.SafeAddress(o.Signer)
	default:
		return o.Maker != (common.Address{})
	}
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	s.count(func(c *Counters) { c.Rejected++ })
	s.logger.Info("stub_order_rejected", zap.Int("status", status), zap.String("error", msg))
	respondError(w, status, msg)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON writes compact JSON without a trailing newline so bodies can
// be compared verbatim.
func respondJSON(w http.ResponseWriter, status int, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}
