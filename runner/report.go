package runner

import (
	"bytes"
	"text/template"

	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/validate"
)

const defaultRejectTemplate = `{{ .Summary }}
{{ .Detail }}
`

type rejectData struct {
	validate.Result
	ShortCommit string
}

// RenderRejection renders the message shown to the pushing client for a
// rejected push, using the configured reject_template if there is one.
// Templates see the Result fields plus ShortCommit.
func (r *Runner) RenderRejection(res validate.Result) (string, error) {
	tmpl := defaultRejectTemplate
	if r.cfg.RejectTemplate != "" {
		tmpl = r.cfg.RejectTemplate
	}
	t, err := template.New("reject").Parse(tmpl)
	if err != nil {
		return "", err
	}

	c := &model.Commit{ID: res.Commit}
	b := &bytes.Buffer{}
	if err := t.Execute(b, rejectData{Result: res, ShortCommit: c.ShortID()}); err != nil {
		return "", err
	}
	return b.String(), nil
}
