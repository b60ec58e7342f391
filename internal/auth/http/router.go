package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/httpx"
	"github.com/edgecoder/edgeauth/pkg/slogx"

	_ "github.com/edgecoder/edgeauth/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	// CookieSecure sets the Secure flag on session cookies; enable when
	// serving over TLS.
	CookieSecure bool

	// InternalToken guards the /internal/ endpoints. Empty means those
	// endpoints answer 503.
	InternalToken string

	SessionService     *service.SessionService
	UserService        *service.UserService
	EmailVerifyService *service.EmailVerificationService
	OAuthService       *service.OAuthService
	PasskeyService     *service.PasskeyService
	NodeService        *service.NodeService
	WalletService      *service.WalletService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAccounts()
	r.registerEmailVerification()
	r.registerOAuth()
	r.registerPasskeys()
	r.registerNodes()
	r.registerWallet()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			EdgeAuth Service API
//	@version		0.1.0
//	@description	Trust core of the EdgeCoder platform: sessions, email verification,
//	@description	OAuth federation with native hand-off, passkey ceremonies, node trust
//	@description	enrollment and two-factor wallet-send authorization.
//
//	@contact.name				EdgeCoder Team
//	@contact.url				https://github.com/edgecoder/edgeauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	SessionAuth
//	@in							header
//	@name						Cookie
//	@description				Opaque session token. Format: "session={token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAccounts() {
	h := &AccountHandler{
		Sessions:     r.SessionService,
		Users:        r.UserService,
		CookieSecure: r.CookieSecure,
	}

	// Credential endpoints get the strict limit to slow brute forcing.
	r.Mux.Handle("POST /auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
	// Session resolution runs before the limiter so the per-user key is on
	// the context when the limiter extracts it.
	r.Mux.Handle("GET /auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		))
}

func (r *Router) registerEmailVerification() {
	h := &EmailVerificationHandler{
		EmailVerify: r.EmailVerifyService,
	}

	r.Mux.Handle("GET /auth/verify-email",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /auth/resend-verification",
		httpx.Chain(http.HandlerFunc(h.HandleResend),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
}

func (r *Router) registerOAuth() {
	h := &OAuthHandler{
		OAuth:        r.OAuthService,
		CookieSecure: r.CookieSecure,
	}

	// Start and callback are registered for both verbs: some providers use
	// response_mode=form_post and POST the callback parameters.
	start := httpx.Chain(http.HandlerFunc(h.HandleStart),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
	r.Mux.Handle("GET /auth/oauth/{provider}/start", start)
	r.Mux.Handle("POST /auth/oauth/{provider}/start", start)

	callback := httpx.Chain(http.HandlerFunc(h.HandleCallback),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
	r.Mux.Handle("GET /auth/oauth/{provider}/callback", callback)
	r.Mux.Handle("POST /auth/oauth/{provider}/callback", callback)
	r.Mux.Handle("POST /auth/oauth/mobile/complete",
		httpx.Chain(http.HandlerFunc(h.HandleMobileComplete),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
}

func (r *Router) registerPasskeys() {
	h := &PasskeyHandler{
		Passkeys:     r.PasskeyService,
		Sessions:     r.SessionService,
		CookieSecure: r.CookieSecure,
	}

	r.Mux.Handle("POST /auth/passkey/register/options",
		httpx.Chain(http.HandlerFunc(h.HandleRegisterOptions),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /auth/passkey/register/verify",
		httpx.Chain(http.HandlerFunc(h.HandleRegisterVerify),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /auth/passkey/login/options",
		httpx.Chain(http.HandlerFunc(h.HandleLoginOptions),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /auth/passkey/login/verify",
		httpx.Chain(http.HandlerFunc(h.HandleLoginVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("GET /auth/passkeys",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		))
	r.Mux.Handle("DELETE /auth/passkeys/{credentialID}",
		httpx.Chain(http.HandlerFunc(h.HandleDelete),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		))
}

func (r *Router) registerNodes() {
	h := &NodeHandler{Nodes: r.NodeService}

	r.Mux.Handle("POST /nodes/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		))
	r.Mux.Handle("GET /nodes",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		))
	r.Mux.Handle("DELETE /nodes/{nodeID}",
		httpx.Chain(http.HandlerFunc(h.HandleDelete),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		))

	// Device and operator endpoints, shared-secret guarded. Validation is
	// called on every node heartbeat so it gets the public limit.
	r.Mux.Handle("POST /internal/nodes/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			httpx.RateLimitByIP(httpx.PublicLimit),
			httpx.RequireInternalToken("X-Internal-Token", r.InternalToken),
		))
	r.Mux.Handle("POST /internal/nodes/{nodeID}/approval",
		httpx.Chain(http.HandlerFunc(h.HandleApproval),
			httpx.RateLimitByIP(httpx.ModerateLimit),
			httpx.RequireInternalToken("X-Internal-Token", r.InternalToken),
		))
}

func (r *Router) registerWallet() {
	h := &WalletHandler{Wallet: r.WalletService}

	r.Mux.Handle("POST /wallet/send/mfa/start",
		httpx.Chain(http.HandlerFunc(h.HandleStart),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /wallet/send/mfa/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.StrictLimit),
		))
	r.Mux.Handle("GET /wallet/send/requests",
		httpx.Chain(http.HandlerFunc(h.HandleListRequests),
			SessionMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		))
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.PublicLimit),
		))
}
