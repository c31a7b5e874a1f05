package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/jrsteele09/go-auth-client/users"
)

//go:embed templates/*
var templateFiles embed.FS

const layoutTemplate = "layout.html"

var pageNames = []string{
	"index.html",
	"login.html",
	"signup.html",
	"forgot_password.html",
	"reset_password.html",
	"forbidden.html",
	"area.html",
	"profile.html",
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// PageData is the template model shared by every console page
type PageData struct {
	AppName       string
	Title         string
	Error         string
	Message       string
	Email         string           // Preserve email on error
	Redirect      string           // Return path carried through the login form
	Token         string           // Password reset token
	User          *users.User      // Signed-in user, nil on public pages
	RequiredRoles []users.RoleType // Roles named on the forbidden page
	SignupRoles   []users.RoleType
}

// pages holds one parsed template set per page, each combined with the layout
type pages map[string]*template.Template

func parsePages() (pages, error) {
	p := make(pages, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(layoutTemplate).ParseFS(TemplateFilesFS(), layoutTemplate, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		p[name] = tmpl
	}
	return p, nil
}

func (s *Server) render(w http.ResponseWriter, p pages, name string, data PageData) {
	s.renderStatus(w, p, name, http.StatusOK, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, p pages, name string, status int, data PageData) {
	tmpl, ok := p[name]
	if !ok {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	data.AppName = s.config.GetAppName()
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Err(err).Str("page", name).Msg("Failed to render template")
	}
}
