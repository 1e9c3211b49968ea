package views

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/eringen/pixelprompt"
)

// statusSection is the body of the not-found and error pages.
func statusSection(title, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<section class="status"><h1>`+
			templ.EscapeString(title)+`</h1><p>`+
			templ.EscapeString(message)+
			` <a href="/">Back to the gallery</a></p></section>`)
		return err
	})
}

// adminLoginSection explains why the admin dashboard is not shown.
func adminLoginSection(p pixelprompt.AdminLoginPage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var body string
		switch {
		case !p.Viewer.Hosted:
			body = `<p>Admin access needs a sign-in provider. Set AUTH_SECRET and LOGIN_URL.</p>`
		case p.Denied:
			body = `<p>Your account has no admin access. Ask an admin to run <code>pixelprompt grant-admin ` +
				templ.EscapeString(p.UID) + `</code>.</p>`
		default:
			href := templ.URL(p.Viewer.LoginURL + "?next=/admin/")
			body = `<p><a href="` + templ.EscapeString(string(href)) + `">Sign in</a> to manage the gallery.</p>`
		}
		_, err := io.WriteString(w, `<section class="admin-login"><h1>Admin</h1>`+body+`</section>`)
		return err
	})
}

// inLayout renders body inside the shared page layout.
func (r *renderer) inLayout(meta pixelprompt.PageMeta, viewer pixelprompt.Viewer, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		html, err := templ.ToGoHTML(ctx, body)
		if err != nil {
			return err
		}
		return r.render("status", meta, viewer, "", html).Render(ctx, w)
	})
}

func (r *renderer) adminLogin(p pixelprompt.AdminLoginPage) templ.Component {
	return r.inLayout(pixelprompt.PageMeta{Title: "Admin | " + r.site.Name}, p.Viewer, adminLoginSection(p))
}

func (r *renderer) notFound() templ.Component {
	return r.inLayout(pixelprompt.PageMeta{Title: "Not found | " + r.site.Name}, pixelprompt.Viewer{},
		statusSection("Not found", "This image doesn't exist or was removed."))
}

func (r *renderer) serverError() templ.Component {
	return r.inLayout(pixelprompt.PageMeta{Title: "Error | " + r.site.Name}, pixelprompt.Viewer{},
		statusSection("Something went wrong", "Please try again in a moment."))
}
