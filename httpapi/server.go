// Package httpapi exposes the escrow backend over HTTP. Handlers stay
// thin: bind, call the service, translate sentinel errors to statuses.
package httpapi

import (
	"log"

	"github.com/gin-gonic/gin"

	"escrowdesk/account"
	"escrowdesk/adjudication"
	"escrowdesk/authz"
	"escrowdesk/dispute"
	"escrowdesk/platform"
	"escrowdesk/proposal"
	"escrowdesk/sponsorship"
	"escrowdesk/trustline"
)

// Deps carries every service the router exposes.
type Deps struct {
	Accounts     *account.Service
	Scopes       *authz.Service
	Proposals    *proposal.Service
	Disputes     *dispute.Service
	Adjudication *adjudication.Service
	Sponsorship  *sponsorship.Service
	Trustlines   *trustline.Service
	Platform     *platform.Service
}

type Server struct {
	r    *gin.Engine
	deps Deps
}

func NewServer(deps Deps) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware())

	s := &Server{r: r, deps: deps}
	s.routes()
	return s
}

func (s *Server) Run(addr string) error {
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("escrowdesk api listening on %s", addr)
	return s.r.Run(addr)
}

// Handler returns the underlying engine for tests.
func (s *Server) Handler() *gin.Engine {
	return s.r
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := s.r.Group("/v1")

	v1.POST("/auth/register", s.handleRegister)
	v1.POST("/auth/login", s.handleLogin)

	authed := v1.Group("")
	authed.Use(AuthMiddleware(s.deps.Accounts))
	{
		authed.GET("/me", s.handleMe)

		authed.POST("/disputes", s.handleInitiateDispute)
		authed.GET("/disputes/:case_id", s.handleGetDispute)
		authed.POST("/disputes/:case_id/evidence", s.handleSubmitEvidence)
		authed.POST("/disputes/:case_id/adjudicate", requireRole(account.RoleArbiter), s.handleAdjudicate)

		authed.PUT("/scopes/:scope_id", s.handleConfigureScope)
		authed.GET("/scopes/:scope_id", s.handleGetScope)
		authed.GET("/proposals/:action_id", s.handleGetProposal)

		authed.POST("/sponsorships", s.handleSponsor)
		authed.POST("/trustlines", s.handleEnsureTrustline)

		authed.GET("/platform/version", s.handleProtocolVersion)
		authed.PUT("/platform/version", requireRole(account.RoleOperator), s.handleSetProtocolVersion)
	}
}
