// CLAUDE:SUMMARY Adapts a live rod page into the replay Document/Element contract.
package anchor

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/chartfill/replay"
)

// rodDocument makes a live page drivable by the replay executor. Locators
// are the CSS subset the field mapper emits, which the browser's own
// querySelector handles natively.
type rodDocument struct {
	page *rod.Page
}

func newRodDocument(page *rod.Page) *rodDocument {
	return &rodDocument{page: page}
}

func (d *rodDocument) Resolve(locator string) (replay.Element, bool) {
	if locator == "" {
		return nil, false
	}
	has, el, err := d.page.Has(locator)
	if err != nil || !has {
		return nil, false
	}
	re := &rodElement{el: el}
	re.toggle, _ = re.isToggle()
	return re, true
}

type rodElement struct {
	el     *rod.Element
	toggle bool
}

func (e *rodElement) isToggle() (bool, error) {
	res, err := e.el.Eval(`() => this.type === "checkbox" || this.type === "radio"`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *rodElement) IsToggle() bool { return e.toggle }

func (e *rodElement) ScrollIntoView() error {
	_, err := e.el.Eval(`() => this.scrollIntoView({block: "center", behavior: "instant"})`)
	return err
}

func (e *rodElement) Focus() error {
	return e.el.Focus()
}

func (e *rodElement) Blur() error {
	_, err := e.el.Eval(`() => this.blur()`)
	return err
}

func (e *rodElement) Click() error {
	_, err := e.el.Eval(`() => this.click()`)
	return err
}

func (e *rodElement) Value() (string, error) {
	res, err := e.el.Eval(`() => this.isContentEditable ? this.innerText : String(this.value ?? "")`)
	if err != nil {
		return "", fmt.Errorf("anchor: read value: %w", err)
	}
	return res.Value.Str(), nil
}

// SetValue overwrites the field and dispatches the notification events
// frameworks listen for, so React/Angular style pages see the change.
func (e *rodElement) SetValue(v string) error {
	_, err := e.el.Eval(`(v) => {
		if (this.isContentEditable) {
			this.innerText = v;
		} else {
			this.value = v;
		}
		this.dispatchEvent(new Event("input", {bubbles: true}));
		this.dispatchEvent(new Event("change", {bubbles: true}));
	}`, v)
	if err != nil {
		return fmt.Errorf("anchor: set value: %w", err)
	}
	return nil
}

func (e *rodElement) Checked() (bool, error) {
	res, err := e.el.Eval(`() => Boolean(this.checked)`)
	if err != nil {
		return false, fmt.Errorf("anchor: read checked: %w", err)
	}
	return res.Value.Bool(), nil
}

func (e *rodElement) SetChecked(on bool) error {
	_, err := e.el.Eval(`(on) => {
		this.checked = on;
		this.dispatchEvent(new Event("input", {bubbles: true}));
		this.dispatchEvent(new Event("change", {bubbles: true}));
	}`, on)
	if err != nil {
		return fmt.Errorf("anchor: set checked: %w", err)
	}
	return nil
}

func (e *rodElement) Highlight(on bool) error {
	_, err := e.el.Eval(`(on) => {
		if (on) {
			this.dataset.prevOutline = this.style.outline || "";
			this.style.outline = "2px solid #4f8ef7";
		} else {
			this.style.outline = this.dataset.prevOutline || "";
			delete this.dataset.prevOutline;
		}
	}`, on)
	return err
}
