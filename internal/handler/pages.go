package handler

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

// resetPage is the form behind the emailed reset link. It posts the new
// password as JSON to the same path.
var resetPage = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Reset Password</title>
<style>
body { font-family: Arial, sans-serif; max-width: 480px; margin: 48px auto; padding: 0 16px; }
label { display: block; margin: 12px 0 4px; font-weight: bold; }
input { width: 100%; padding: 10px; box-sizing: border-box; }
button { margin-top: 16px; width: 100%; padding: 12px; }
#msg { margin-top: 16px; }
</style>
</head>
<body>
<h1>Reset your password</h1>
<p>At least 8 characters with an uppercase letter, a lowercase letter, a number and one of @$!%*?&amp;.</p>
<form id="reset" data-action="{{.Action}}">
  <label for="password">New password</label>
  <input type="password" id="password" required minlength="8">
  <label for="confirm">Confirm password</label>
  <input type="password" id="confirm" required minlength="8">
  <button type="submit">Reset password</button>
</form>
<div id="msg"></div>
<script>
document.getElementById('reset').addEventListener('submit', async function (e) {
  e.preventDefault();
  var pw = document.getElementById('password').value;
  var msg = document.getElementById('msg');
  if (pw !== document.getElementById('confirm').value) {
    msg.textContent = 'Passwords do not match.';
    return;
  }
  var res = await fetch(this.dataset.action, {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify({ password: pw })
  });
  var body = await res.json();
  msg.textContent = body.message || (res.ok ? 'Done.' : 'Password reset failed.');
  if (res.ok) { this.style.display = 'none'; }
});
</script>
</body>
</html>
`))

// ResetPasswordForm renders the reset form for the token in the path. The
// token is not checked here; the POST reports invalid or expired tokens.
func (h *AuthHandler) ResetPasswordForm(c echo.Context) error {
	var buf bytes.Buffer
	if err := resetPage.Execute(&buf, struct{ Action string }{c.Request().URL.Path}); err != nil {
		return err
	}
	c.Response().Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline' 'self'; style-src 'unsafe-inline'")
	c.Response().Header().Set("Referrer-Policy", "no-referrer")
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
