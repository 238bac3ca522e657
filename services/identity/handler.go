package identity

import (
	"net/http"

	"reviewhub/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const maxDocumentSize = 10 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid sign up request", err))
		return
	}

	user, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *Handler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("email and password are required", err))
		return
	}

	resp, err := h.svc.SignIn(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Me(c *gin.Context) {
	profile, err := h.svc.Me(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *Handler) UploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentSize)

	fh, err := c.FormFile("file")
	if err != nil {
		c.Error(errutil.ValidationFailed("multipart field \"file\" is required", err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.Error(errutil.BadRequest("unreadable upload", err))
		return
	}
	defer f.Close()

	business, err := h.svc.UploadVerificationDocument(c.Request.Context(), fh.Filename, f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, business)
}

func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("verified is required", err))
		return
	}

	user, err := h.svc.SetVerified(c.Request.Context(), c.Param("id"), *req.Verified)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}
