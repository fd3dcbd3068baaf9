package packs

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	indexPath   = "/packs/index.json"
	emotesPath  = "/im.ponies.user_emotes"
	proxyPrefix = "/packs/"
)

type Handler struct {
	Repo *Repo
	// Static serves every /:profile/* path that is not a pack route.
	Static http.Handler
}

func NewHandler(repo *Repo, static http.Handler) *Handler {
	return &Handler{Repo: repo, Static: static}
}

// RegisterRoutes mounts the profile routes. They share one wildcard route
// because gin does not allow a catch-all beside static siblings:
//
//	GET /:profile/packs/index.json
//	GET /:profile/im.ponies.user_emotes
//	GET /:profile/packs/*key
//	GET /:profile/*file
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:profile/*path", h.dispatch)
	rg.HEAD("/:profile/*path", h.dispatch)
}

func (h *Handler) dispatch(c *gin.Context) {
	rest := c.Param("path")
	switch {
	case rest == indexPath:
		h.index(c)
	case rest == emotesPath:
		h.emotes(c)
	case strings.HasPrefix(rest, proxyPrefix) && len(rest) > len(proxyPrefix):
		h.proxy(c, strings.TrimPrefix(rest, proxyPrefix))
	default:
		h.static(c, rest)
	}
}

func (h *Handler) profile(c *gin.Context) (string, bool) {
	p := c.Param("profile")
	if p == "" || p == "." || p == ".." || strings.Contains(p, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile"})
		return "", false
	}
	return p, true
}

func (h *Handler) index(c *gin.Context) {
	profile, ok := h.profile(c)
	if !ok {
		return
	}
	idx, err := h.Repo.Index(c.Request.Context(), profile)
	if err != nil {
		log.WithError(err).WithField("profile", profile).Error("error listing bucket")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, idx)
}

func (h *Handler) emotes(c *gin.Context) {
	profile, ok := h.profile(c)
	if !ok {
		return
	}
	catalog, err := h.Repo.UserEmotes(c.Request.Context(), profile)
	if err != nil {
		log.WithError(err).WithField("profile", profile).Error("error creating user emotes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog failed"})
		return
	}
	c.JSON(http.StatusOK, catalog)
}

// proxy passes a bucket object through unmodified, keeping the store's status.
func (h *Handler) proxy(c *gin.Context, key string) {
	entry := log.WithField("key", key)
	entry.Info("fetching object from bucket")

	obj, err := h.Repo.Store.Get(c.Request.Context(), key)
	if err != nil {
		entry.WithError(err).Error("error fetching object")
		c.JSON(http.StatusBadGateway, gin.H{"error": "fetch failed"})
		return
	}
	entry.WithField("status", obj.StatusCode).Info("found object")

	c.Data(obj.StatusCode, contentTypeFor(key, obj.ContentType), obj.Body)
}

func (h *Handler) static(c *gin.Context, file string) {
	if h.Static == nil {
		c.Status(http.StatusNotFound)
		return
	}
	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = file
	req.URL.RawPath = ""
	h.Static.ServeHTTP(c.Writer, req)
}

// contentTypeFor prefers the extension, then the type the store recorded.
func contentTypeFor(key, stored string) string {
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	if stored != "" {
		return stored
	}
	return "application/octet-stream"
}
