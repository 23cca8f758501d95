// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/quillnotes/quill/internal/auth"
	"github.com/quillnotes/quill/internal/auth/authtest"
	authpg "github.com/quillnotes/quill/internal/auth/postgres"
	"github.com/quillnotes/quill/internal/web"
)

var _ = Describe("Account flows over HTTP", func() {
	var (
		mailer *authtest.RecordingMailer
		clock  *authtest.Clock
		users  *authpg.UserRepository
		svc    *auth.Service
		srv    *httptest.Server
	)

	BeforeEach(func() {
		cleanupUsers(env.ctx, env.pool)

		mailer = &authtest.RecordingMailer{}
		clock = authtest.NewClock(time.Now().UTC())
		users = authpg.NewUserRepository(env.pool)

		var err error
		svc, err = auth.NewService(auth.Deps{
			Store:   users,
			Mailer:  mailer,
			Hasher:  authtest.Hasher(),
			Secrets: auth.StaticSecret("integration-secret-integration-secret"),
			Now:     clock.Now,
		}, auth.Options{
			SessionTTL:    time.Hour,
			SessionIssuer: "quill",
			Tokens:        auth.DefaultTokenTTLs(),
		})
		Expect(err).NotTo(HaveOccurred())

		srv = httptest.NewServer(web.NewRouter(svc, web.RouterOptions{}))
	})

	AfterEach(func() {
		srv.Close()
	})

	post := func(path string, body any) *http.Response {
		payload, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	login := func(email, password string) (*http.Response, map[string]any) {
		resp := post("/auth/login", map[string]string{"email": email, "password": password})
		var body map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return resp, body
	}

	Describe("register, verify and login", func() {
		It("verifies the email exactly once and issues a usable session", func() {
			resp := post("/auth/register", map[string]string{
				"email": "Alice@Example.com", "name": "Alice", "password": "correct horse",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			token := mailer.LastToken(auth.MailWelcome, "alice@example.com")
			Expect(token).NotTo(BeEmpty())

			stored, err := users.GetByEmail(env.ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsVerified()).To(BeFalse())
			Expect(stored.VerificationToken).NotTo(BeNil())
			Expect(*stored.VerificationToken).NotTo(Equal(token))

			Expect(post("/auth/verify", map[string]string{"token": token}).StatusCode).To(Equal(http.StatusOK))
			Expect(post("/auth/verify", map[string]string{"token": token}).StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(mailer.Sent(auth.MailEmailVerified)).To(HaveLen(1))

			resp, body := login("alice@example.com", "correct horse")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["is_verified"]).To(BeTrue())

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Bearer "+body["token"].(string))
			me, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer me.Body.Close()
			Expect(me.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects a duplicate registration without a second welcome", func() {
			body := map[string]string{"email": "bob@example.com", "name": "Bob", "password": "correct horse"}
			Expect(post("/auth/register", body).StatusCode).To(Equal(http.StatusOK))
			Expect(post("/auth/register", body).StatusCode).To(Equal(http.StatusUnprocessableEntity))
			Expect(mailer.Sent(auth.MailWelcome)).To(HaveLen(1))
		})
	})

	Describe("forgot and reset", func() {
		BeforeEach(func() {
			Expect(post("/auth/register", map[string]string{
				"email": "carol@example.com", "name": "Carol", "password": "old password",
			}).StatusCode).To(Equal(http.StatusOK))
		})

		It("replaces the password and consumes the token", func() {
			Expect(post("/auth/forgot", map[string]string{"email": "carol@example.com"}).StatusCode).
				To(Equal(http.StatusOK))
			token := mailer.LastToken(auth.MailForgotPassword, "carol@example.com")
			Expect(token).NotTo(BeEmpty())

			reset := map[string]string{"token": token, "password": "new password"}
			Expect(post("/auth/reset", reset).StatusCode).To(Equal(http.StatusOK))
			Expect(post("/auth/reset", reset).StatusCode).To(Equal(http.StatusUnauthorized))

			resp, _ := login("carol@example.com", "old password")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp, _ = login("carol@example.com", "new password")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects an expired reset token", func() {
			post("/auth/forgot", map[string]string{"email": "carol@example.com"})
			token := mailer.LastToken(auth.MailForgotPassword, "carol@example.com")

			clock.Advance(auth.DefaultTokenTTLs().Reset + time.Minute)
			Expect(post("/auth/reset", map[string]string{"token": token, "password": "new password"}).StatusCode).
				To(Equal(http.StatusUnauthorized))
		})

		It("answers forgot for unknown emails without sending mail", func() {
			Expect(post("/auth/forgot", map[string]string{"email": "nobody@example.com"}).StatusCode).
				To(Equal(http.StatusOK))
			Expect(mailer.Sent(auth.MailForgotPassword)).To(BeEmpty())
		})
	})

	Describe("token purge", func() {
		It("clears tokens older than their lifetime", func() {
			Expect(post("/auth/register", map[string]string{
				"email": "dave@example.com", "name": "Dave", "password": "correct horse",
			}).StatusCode).To(Equal(http.StatusOK))

			clock.Advance(auth.DefaultTokenTTLs().Verification + time.Hour)
			n, err := svc.PurgeExpiredTokens(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeNumerically("==", 1))

			stored, err := users.GetByEmail(env.ctx, "dave@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.VerificationToken).To(BeNil())
		})
	})
})
