package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"escrowdesk/account"
	"escrowdesk/adjudication"
	"escrowdesk/authz"
	"escrowdesk/dispute"
	"escrowdesk/sponsorship"
	"escrowdesk/trustline"
)

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := s.deps.Accounts.Register(c.Request.Context(), account.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     account.Role(req.Role),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": toUserResponse(*user)})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.deps.Accounts.Login(c.Request.Context(), account.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": res.Token, "user": toUserResponse(res.User)})
}

func (s *Server) handleMe(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	user, err := s.deps.Accounts.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(*user)})
}

func (s *Server) handleInitiateDispute(c *gin.Context) {
	claimantID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		CaseID       string `json:"case_id"`
		RespondentID string `json:"respondent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	d, err := s.deps.Disputes.Initiate(c.Request.Context(), dispute.InitiateParams{
		CaseID:       req.CaseID,
		ClaimantID:   claimantID,
		RespondentID: req.RespondentID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"dispute": toDisputeResponse(d)})
}

func (s *Server) handleGetDispute(c *gin.Context) {
	d, err := s.deps.Disputes.Get(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": toDisputeResponse(d)})
}

func (s *Server) handleSubmitEvidence(c *gin.Context) {
	submitterID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		ContentRef string `json:"content_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ev, err := s.deps.Disputes.SubmitEvidence(c.Request.Context(), c.Param("case_id"), submitterID, req.ContentRef)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"evidence": gin.H{
		"case_id":      ev.CaseID,
		"seq":          ev.Seq,
		"submitter_id": ev.SubmitterID,
		"content_ref":  ev.ContentRef,
		"submitted_at": ev.SubmittedAt.Format(time.RFC3339),
	}})
}

func (s *Server) handleAdjudicate(c *gin.Context) {
	arbiterID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		SplitRatio int32  `json:"split_ratio"`
		ScopeID    string `json:"scope_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.deps.Adjudication.Adjudicate(c.Request.Context(), adjudication.AdjudicateParams{
		CaseID:     c.Param("case_id"),
		SplitRatio: req.SplitRatio,
		ArbiterID:  arbiterID,
		ScopeID:    req.ScopeID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	payload := gin.H{
		"status":             res.Status,
		"action_id":          res.ActionID,
		"accumulated_weight": res.AccumulatedWeight,
		"required":           res.Required,
	}
	if res.Dispute != nil {
		payload["dispute"] = toDisputeResponse(*res.Dispute)
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleConfigureScope(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		Low     int64 `json:"low"`
		Med     int64 `json:"med"`
		High    int64 `json:"high"`
		Signers []struct {
			SignerID string `json:"signer_id"`
			Weight   int64  `json:"weight"`
		} `json:"signers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	signers := make([]authz.SignerWeight, 0, len(req.Signers))
	for _, sw := range req.Signers {
		signers = append(signers, authz.SignerWeight{SignerID: sw.SignerID, Weight: sw.Weight})
	}

	scope, err := s.deps.Scopes.ConfigureScope(c.Request.Context(), authz.ConfigureScopeParams{
		ScopeID: c.Param("scope_id"),
		OwnerID: ownerID,
		Signers: signers,
		Low:     req.Low,
		Med:     req.Med,
		High:    req.High,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scope": toScopeResponse(scope)})
}

func (s *Server) handleGetScope(c *gin.Context) {
	scope, err := s.deps.Scopes.Get(c.Request.Context(), c.Param("scope_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": toScopeResponse(scope)})
}

func (s *Server) handleGetProposal(c *gin.Context) {
	p, err := s.deps.Proposals.Get(c.Request.Context(), c.Param("action_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	payload := gin.H{
		"action_id":          p.ActionID,
		"scope_id":           p.ScopeID,
		"class":              p.Class,
		"status":             p.Status,
		"accumulated_weight": p.AccumulatedWeight,
		"created_at":         p.CreatedAt.Format(time.RFC3339),
	}
	if p.ExpiresAt != nil {
		payload["expires_at"] = p.ExpiresAt.Format(time.RFC3339)
	}
	if p.ExecutedAt != nil {
		payload["executed_at"] = p.ExecutedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, gin.H{"proposal": payload})
}

func (s *Server) handleSponsor(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		Operation string `json:"operation"`
		Amount    int64  `json:"amount"`
		InnerXDR  string `json:"inner_xdr"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	envelope, err := s.deps.Sponsorship.Sponsor(c.Request.Context(), sponsorship.Envelope{
		UserID:    userID,
		Operation: req.Operation,
		Amount:    req.Amount,
		InnerXDR:  req.InnerXDR,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sponsored_xdr": envelope})
}

func (s *Server) handleEnsureTrustline(c *gin.Context) {
	var req struct {
		AccountID string `json:"account_id"`
		AssetCode string `json:"asset_code"`
		Issuer    string `json:"issuer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var (
		created bool
		err     error
	)
	if req.AssetCode == "" {
		created, err = s.deps.Trustlines.EnsureUSDC(c.Request.Context(), req.AccountID)
	} else {
		created, err = s.deps.Trustlines.Ensure(c.Request.Context(), trustline.Grant{
			AccountID: req.AccountID,
			AssetCode: req.AssetCode,
			Issuer:    req.Issuer,
		})
	}
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created})
}

func (s *Server) handleProtocolVersion(c *gin.Context) {
	version, err := s.deps.Platform.ProtocolVersion(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocol_version": version})
}

func (s *Server) handleSetProtocolVersion(c *gin.Context) {
	var req struct {
		ProtocolVersion int `json:"protocol_version"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.deps.Platform.SetProtocolVersion(c.Request.Context(), req.ProtocolVersion); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocol_version": req.ProtocolVersion})
}

func toUserResponse(u account.User) gin.H {
	resp := gin.H{
		"id":         u.ID,
		"email":      u.Email,
		"full_name":  u.FullName,
		"role":       u.Role,
		"created_at": u.CreatedAt.Format(time.RFC3339),
	}
	if u.WalletAddress != nil {
		resp["wallet_address"] = *u.WalletAddress
	}
	return resp
}

func toDisputeResponse(d dispute.Dispute) gin.H {
	resp := gin.H{
		"case_id":       d.CaseID,
		"claimant_id":   d.ClaimantID,
		"respondent_id": d.RespondentID,
		"status":        d.Status,
		"opened_at":     d.OpenedAt.Format(time.RFC3339),
	}
	if d.SplitRatio != nil {
		resp["split_ratio"] = *d.SplitRatio
	}
	if d.ArbiterID != nil {
		resp["arbiter_id"] = *d.ArbiterID
	}
	if d.ResolvedAt != nil {
		resp["resolved_at"] = d.ResolvedAt.Format(time.RFC3339)
	}
	if len(d.Evidence) > 0 {
		evidence := make([]gin.H, 0, len(d.Evidence))
		for _, ev := range d.Evidence {
			evidence = append(evidence, gin.H{
				"seq":          ev.Seq,
				"submitter_id": ev.SubmitterID,
				"content_ref":  ev.ContentRef,
				"submitted_at": ev.SubmittedAt.Format(time.RFC3339),
			})
		}
		resp["evidence"] = evidence
	}
	return resp
}

func toScopeResponse(scope authz.Scope) gin.H {
	signers := make([]gin.H, 0, len(scope.Signers))
	for _, sw := range scope.Signers {
		signers = append(signers, gin.H{"signer_id": sw.SignerID, "weight": sw.Weight})
	}
	return gin.H{
		"id":       scope.ID,
		"owner_id": scope.OwnerID,
		"low":      scope.Low,
		"med":      scope.Med,
		"high":     scope.High,
		"signers":  signers,
	}
}
