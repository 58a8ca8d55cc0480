package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"

	"userdash/pkg/apiclient"
	"userdash/pkg/dashboard"
	"userdash/pkg/store"
	"userdash/pkg/users"
)

const helpText = `commands:
  search [text]                 filter by name, email, role or company (empty clears)
  role [Admin|Editor|User]      filter by role (empty clears)
  status [active|inactive]      filter by status (empty clears)
  page <n> | next | prev        move through the results
  new | edit <id> | cancel      open or close the form
  save key=value ...            submit the form (name, email, role, phone, website, company, bio, avatar, active)
  activate|deactivate <id>      change a user's status
  delete <id>                   remove a user
  refresh                       apply a pending search now and reload
  show | help | quit`

type subscriber interface {
	Subscribe(fn func(store.State)) func()
}

type repl struct {
	ctrl *dashboard.Controller
	subs subscriber

	outMu sync.Mutex
	out   io.Writer
	// busy suppresses background redraws while a command renders its own result.
	busy  atomic.Bool
}

func newREPL(ctrl *dashboard.Controller, subs subscriber, out io.Writer) *repl {
	return &repl{ctrl: ctrl, subs: subs, out: out}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.busy.Store(true)
	cancel := r.subs.Subscribe(r.onChange)
	defer cancel()
	defer r.ctrl.Unmount()

	if err := r.ctrl.Mount(ctx); err != nil {
		r.printf("could not load users: %v\n", err)
	}
	r.render(r.ctrl.View())
	r.busy.Store(false)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		r.printf("> ")
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			r.busy.Store(true)
			quit := r.exec(ctx, line)
			r.busy.Store(false)
			if quit {
				return nil
			}
		}
	}
}

// onChange redraws when the list settles outside a command, e.g. after a debounced search.
func (r *repl) onChange(st store.State) {
	if r.busy.Load() || st.Loading {
		return
	}
	r.printf("\n")
	r.render(r.ctrl.View())
	r.printf("> ")
}

// exec runs one command line and reports whether the session should end.
func (r *repl) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	cmd = strings.ToLower(cmd)
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help", "?":
		r.printf("%s\n", helpText)
		return false
	case "show":
	case "search":
		err = r.ctrl.SetSearch(ctx, arg)
		if err == nil {
			r.printf("searching for %q...\n", arg)
			return false
		}
	case "role":
		err = r.ctrl.SetRole(ctx, parseRole(arg))
	case "status":
		err = r.ctrl.SetStatus(ctx, parseStatus(arg))
	case "page":
		n, convErr := strconv.Atoi(arg)
		if convErr != nil || n < 1 {
			r.printf("page needs a positive number\n")
			return false
		}
		err = r.ctrl.SetPage(ctx, n)
	case "next", "prev":
		p := r.ctrl.View().Pagination
		n := p.CurrentPage + 1
		if cmd == "prev" {
			n = p.CurrentPage - 1
		}
		if n < 1 || n > p.LastPage {
			r.printf("no %s page\n", cmd)
			return false
		}
		err = r.ctrl.SetPage(ctx, n)
	case "new":
		r.ctrl.New()
	case "edit":
		u, ok := r.findUser(arg)
		if !ok {
			r.printf("no user %q on this page\n", arg)
			return false
		}
		r.ctrl.Edit(u)
	case "cancel":
		r.ctrl.Cancel()
	case "save":
		err = r.save(ctx, arg)
	case "activate", "deactivate":
		id, convErr := strconv.ParseInt(arg, 10, 64)
		if convErr != nil {
			r.printf("%s needs a user id\n", cmd)
			return false
		}
		err = r.ctrl.SetActive(ctx, id, cmd == "activate")
	case "delete":
		id, convErr := strconv.ParseInt(arg, 10, 64)
		if convErr != nil {
			r.printf("delete needs a user id\n")
			return false
		}
		err = r.ctrl.Delete(ctx, id)
	case "refresh":
		r.ctrl.Refresh(ctx)
	default:
		r.printf("unknown command %q, try help\n", cmd)
		return false
	}

	if err != nil {
		r.printError(err)
	}
	r.render(r.ctrl.View())
	return false
}

func (r *repl) findUser(arg string) (users.User, bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return users.User{}, false
	}
	for _, u := range r.ctrl.View().Records {
		if u.ID == id {
			return u, true
		}
	}
	return users.User{}, false
}

func (r *repl) save(ctx context.Context, arg string) error {
	vm := r.ctrl.View()
	if !vm.FormOpen {
		return errors.New("no form open, use new or edit first")
	}
	fields, err := parseFields(arg)
	if err != nil {
		return err
	}

	active := true
	base := users.UserInput{Role: users.RoleUser, IsActive: &active}
	if vm.Editing != nil {
		base = vm.Editing.Input()
	}
	in, err := buildInput(base, fields)
	if err != nil {
		return err
	}
	return r.ctrl.Submit(ctx, in)
}

func (r *repl) printError(err error) {
	var verr *users.ValidationError
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &verr):
		r.printf("please fix the form:\n")
		for _, f := range verr.Fields.Fields() {
			r.printf("  %s: %s\n", f, strings.Join(verr.Fields[f], " "))
		}
	case errors.As(err, &apiErr) && apiErr.NotFound():
		r.printf("error: that user no longer exists, try refresh\n")
	case errors.As(err, &apiErr):
		r.printf("error: %s\n", apiErr.Message)
		for f, msgs := range apiErr.FieldErrors {
			r.printf("  %s: %s\n", f, strings.Join(msgs, " "))
		}
	default:
		r.printf("error: %v\n", err)
	}
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) render(vm dashboard.ViewModel) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	renderView(r.out, vm)
}

func renderView(w io.Writer, vm dashboard.ViewModel) {
	fmt.Fprintln(w, "User Dashboard")
	fmt.Fprintf(w, "search: %q  role: %s  status: %s", vm.SearchText, orAll(string(vm.Role)), statusLabel(vm.Status))
	if vm.SearchPending {
		fmt.Fprint(w, "  (search pending)")
	}
	fmt.Fprintln(w)

	if vm.Stats != nil {
		fmt.Fprintf(w, "total %d  active %d  inactive %d", vm.Stats.Total, vm.Stats.Active, vm.Stats.Inactive)
		for _, rc := range dashboard.RoleCounts(vm.Stats) {
			fmt.Fprintf(w, "  %s %d", rc.Role, rc.Count)
		}
		fmt.Fprintln(w)
	}

	if vm.Loading {
		fmt.Fprintln(w, "loading...")
	} else if vm.Err != nil {
		fmt.Fprintf(w, "error: %v\n", vm.Err)
	}

	if len(vm.Records) == 0 {
		fmt.Fprintln(w, "no users found")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tCOMPANY\tACTIVE")
		for _, u := range vm.Records {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role, deref(u.Company), yesNo(u.IsActive))
		}
		_ = tw.Flush()
	}

	p := vm.Pagination
	pages := make([]string, 0, len(vm.Pages))
	for _, n := range vm.Pages {
		if n == p.CurrentPage {
			pages = append(pages, "["+strconv.Itoa(n)+"]")
		} else {
			pages = append(pages, strconv.Itoa(n))
		}
	}
	fmt.Fprintf(w, "page %d of %d (%d users)  %s\n", p.CurrentPage, p.LastPage, p.Total, strings.Join(pages, " "))

	switch {
	case vm.FormOpen && vm.Editing != nil:
		fmt.Fprintf(w, "editing user %d (%s), save key=value ... or cancel\n", vm.Editing.ID, vm.Editing.Email)
	case vm.FormOpen:
		fmt.Fprintln(w, "new user, save name=... email=... or cancel")
	}
}

// parseFields splits `key=value key="quoted value"` pairs.
func parseFields(s string) (map[string]string, error) {
	out := map[string]string{}
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		key, rest, ok := strings.Cut(s, "=")
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("expected key=value near %q", s)
		}
		var val string
		if strings.HasPrefix(rest, `"`) {
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, fmt.Errorf("unterminated quote for %s", key)
			}
			val, _ = strconv.Unquote(quoted)
			rest = rest[len(quoted):]
		} else {
			val, rest, _ = strings.Cut(rest, " ")
		}
		out[strings.ToLower(key)] = val
		s = rest
	}
	return out, nil
}

// buildInput overlays fields onto base. Empty optional values clear the field.
func buildInput(base users.UserInput, fields map[string]string) (users.UserInput, error) {
	var p users.UserPatch
	optional := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}
	for k, v := range fields {
		switch k {
		case "name":
			p.Name = &v
		case "email":
			p.Email = &v
		case "role":
			role := parseRole(v)
			if role == "" {
				role = users.Role(v)
			}
			p.Role = &role
		case "phone":
			base.Phone = optional(v)
		case "website":
			base.Website = optional(v)
		case "company":
			base.Company = optional(v)
		case "bio":
			base.Bio = optional(v)
		case "avatar":
			base.Avatar = optional(v)
		case "active":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return users.UserInput{}, fmt.Errorf("active must be true or false")
			}
			p.IsActive = &b
		default:
			return users.UserInput{}, fmt.Errorf("unknown field %q", k)
		}
	}
	return p.Apply(base), nil
}

// parseRole matches a role case-insensitively; anything else means "all".
func parseRole(s string) users.Role {
	for _, r := range users.Roles {
		if strings.EqualFold(s, string(r)) {
			return r
		}
	}
	return ""
}

func parseStatus(s string) users.Status {
	switch strings.ToLower(s) {
	case "active", "true":
		return users.StatusActive
	case "inactive", "false":
		return users.StatusInactive
	}
	return users.StatusAny
}

func statusLabel(s users.Status) string {
	switch s {
	case users.StatusActive:
		return "active"
	case users.StatusInactive:
		return "inactive"
	}
	return "all"
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
