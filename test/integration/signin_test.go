// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

//go:build integration

package integration

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/passgate/passgate/internal/auth"
	authpg "github.com/passgate/passgate/internal/auth/postgres"
	"github.com/passgate/passgate/internal/session"
	"github.com/passgate/passgate/internal/web"
)

const cookieName = "passgate_session"

// browser is an HTTP client with a cookie jar pointed at one server.
type browser struct {
	client *http.Client
	base   *url.URL
}

func newBrowser(baseURL string) *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	u, err := url.Parse(baseURL)
	Expect(err).NotTo(HaveOccurred())
	return &browser{client: &http.Client{Jar: jar, Timeout: 10 * time.Second}, base: u}
}

func (b *browser) get(path string) (int, string) {
	res, err := b.client.Get(b.base.String() + path)
	Expect(err).NotTo(HaveOccurred())
	return readAll(res)
}

func (b *browser) post(path string, form url.Values) (int, string) {
	res, err := b.client.PostForm(b.base.String()+path, form)
	Expect(err).NotTo(HaveOccurred())
	return readAll(res)
}

func (b *browser) sessionID() string {
	for _, c := range b.client.Jar.Cookies(b.base) {
		if c.Name == cookieName {
			return c.Value
		}
	}
	return ""
}

func readAll(res *http.Response) (int, string) {
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	Expect(err).NotTo(HaveOccurred())
	return res.StatusCode, string(body)
}

// startServer wires the web server over postgres identities and sessions.
func startServer(sessions session.Store) *httptest.Server {
	identities := authpg.NewIdentityRepository(env.pool)
	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 8192, Threads: 1, SaltLen: 16, KeyLen: 16})
	Expect(err).NotTo(HaveOccurred())
	authn, err := auth.NewAuthenticatorWithLogger(identities, hasher, env.logger)
	Expect(err).NotTo(HaveOccurred())
	registrar, err := auth.NewRegistrarWithLogger(identities, hasher, env.logger)
	Expect(err).NotTo(HaveOccurred())
	codec, err := auth.NewSessionCodecWithLogger(sessions, identities, time.Hour, env.logger)
	Expect(err).NotTo(HaveOccurred())

	srv, err := web.NewServer(web.Options{
		Addr:          "127.0.0.1:0",
		Codec:         codec,
		Authenticator: authn,
		Registrar:     registrar,
		Cookie:        web.CookieConfig{Name: cookieName},
		Logger:        env.logger,
	})
	Expect(err).NotTo(HaveOccurred())
	return httptest.NewServer(srv.Handler())
}

var _ = Describe("Sign-in flow", func() {
	BeforeEach(func() {
		env.truncate()
	})

	DescribeTable("register, sign in and sign out",
		func(newStore func() session.Store) {
			sessions := newStore()
			ts := startServer(sessions)
			DeferCleanup(ts.Close)
			b := newBrowser(ts.URL)

			status, body := b.post("/register", url.Values{
				"name": {"Ann"}, "email": {"Ann@Example.com"}, "password": {"secret1"},
			})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("<h1>Login</h1>"))

			status, body = b.post("/login", url.Values{"email": {"ann@example.com"}, "password": {"wrong!"}})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring(auth.PublicRejectionMessage))
			anonymousID := b.sessionID()
			Expect(anonymousID).NotTo(BeEmpty(), "the flash needs an anonymous session")

			status, body = b.post("/login", url.Values{"email": {"ann@example.com"}, "password": {"secret1"}})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("Hi Ann"))

			authedID := b.sessionID()
			Expect(authedID).NotTo(BeEmpty())
			Expect(authedID).NotTo(Equal(anonymousID), "sign-in must rotate the session ID")
			_, err := sessions.Get(env.ctx, anonymousID)
			Expect(err).To(MatchError(session.ErrNotFound))

			status, body = b.get("/api/me")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring(`"email":"ann@example.com"`))

			status, body = b.post("/logout?_method=DELETE", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("<h1>Login</h1>"))
			_, err = sessions.Get(env.ctx, authedID)
			Expect(err).To(MatchError(session.ErrNotFound))

			status, _ = b.get("/api/me")
			Expect(status).To(Equal(http.StatusUnauthorized))
		},
		Entry("with redis sessions", func() session.Store {
			rs, err := session.NewRedisStore(env.redis, "passgate:it:")
			Expect(err).NotTo(HaveOccurred())
			return rs
		}),
		Entry("with postgres sessions", func() session.Store {
			return authpg.NewSessionStore(env.pool)
		}),
	)

	It("answers a second registration of the same email like a first one", func() {
		ts := startServer(authpg.NewSessionStore(env.pool))
		DeferCleanup(ts.Close)
		b := newBrowser(ts.URL)
		form := url.Values{"name": {"Ann"}, "email": {"ann@example.com"}, "password": {"secret1"}}

		_, first := b.post("/register", form)
		form.Set("password", "other1")
		status, second := b.post("/register", form)
		Expect(status).To(Equal(http.StatusOK))
		Expect(second).To(Equal(first))
		Expect(b.sessionID()).To(BeEmpty())

		var count int
		Expect(env.pool.QueryRow(env.ctx, "SELECT count(*) FROM identities").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})
})

var _ = Describe("Postgres session sweeping", func() {
	BeforeEach(func() {
		env.truncate()
	})

	It("deletes only expired sessions", func() {
		store := authpg.NewSessionStore(env.pool)

		live, err := session.New(time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Set(env.ctx, live)).To(Succeed())

		expired, err := session.New(time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Set(env.ctx, expired)).To(Succeed())
		_, err = env.pool.Exec(env.ctx,
			"UPDATE sessions SET expires_at = now() - interval '1 minute' WHERE id_hash = $1",
			authpg.HashID(expired.ID))
		Expect(err).NotTo(HaveOccurred())

		n, err := store.DeleteExpired(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(1))

		got, err := store.Get(env.ctx, live.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(live.ID))
	})

	It("never writes the raw session id to the table", func() {
		store := authpg.NewSessionStore(env.pool)
		sess, err := session.New(time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Set(env.ctx, sess)).To(Succeed())

		var leaked int
		err = env.pool.QueryRow(env.ctx,
			"SELECT count(*) FROM sessions WHERE id_hash = $1 OR strpos(data::text, $1) > 0",
			sess.ID).Scan(&leaked)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaked).To(BeZero())
	})
})

var _ = Describe("Redis session expiry", func() {
	It("lets redis expire sessions at their deadline", func() {
		rs, err := session.NewRedisStore(env.redis, "passgate:ttl:")
		Expect(err).NotTo(HaveOccurred())

		sess, err := session.New(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(rs.Set(env.ctx, sess)).To(Succeed())

		Eventually(func() error {
			_, err := rs.Get(env.ctx, sess.ID)
			return err
		}).WithTimeout(5 * time.Second).WithPolling(100 * time.Millisecond).Should(MatchError(session.ErrNotFound))
	})
})
