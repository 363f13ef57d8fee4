package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wrale/devicetoken/internal/catalog"
	"github.com/wrale/devicetoken/internal/deviceflow"
)

// searchPageSize is the number of search results shown per page
const searchPageSize = 10

// errQuit is returned when the user leaves the menu without choosing
var errQuit = errors.New("no application selected")

// errBack returns from a sub menu to the main menu
var errBack = errors.New("back")

// menu walks the user through picking an application
type menu struct {
	in      *bufio.Reader
	out     io.Writer
	catalog *catalog.Catalog
}

func newMenu(in *bufio.Reader, out io.Writer, c *catalog.Catalog) *menu {
	return &menu{in: in, out: out, catalog: c}
}

// choose runs the menu until an application is picked. End of input counts as quitting.
func (m *menu) choose() (catalog.App, error) {
	for {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, headingStyle.Render("=== APPLICATION SELECTION ==="))
		fmt.Fprintf(m.out, "%s Choose from top %d Microsoft applications\n", keyStyle.Render("1."), len(catalog.TopApps()))
		fmt.Fprintf(m.out, "%s Search all Microsoft applications (%d)\n", keyStyle.Render("2."), m.catalog.Len())
		fmt.Fprintf(m.out, "%s Enter custom client ID\n", keyStyle.Render("3."))
		fmt.Fprintf(m.out, "%s Quit\n", keyStyle.Render("q."))

		choice, err := m.prompt("Enter your choice: ")
		if err != nil {
			return catalog.App{}, err
		}

		var app catalog.App
		switch strings.ToLower(choice) {
		case "q":
			return catalog.App{}, errQuit
		case "1":
			app, err = m.topApps()
		case "2":
			app, err = m.search()
		case "3":
			app, err = m.custom()
		default:
			m.warn("Invalid choice. Please try again.")
			continue
		}
		if errors.Is(err, errBack) {
			continue
		}
		return app, err
	}
}

func (m *menu) topApps() (catalog.App, error) {
	top := catalog.TopApps()
	fmt.Fprintln(m.out)
	printApps(m.out, "TOP MICROSOFT APPLICATIONS", top, 0)

	for {
		choice, err := m.prompt(fmt.Sprintf("Enter number (1-%d) or 'b' to go back: ", len(top)))
		if err != nil {
			return catalog.App{}, err
		}
		if strings.EqualFold(choice, "b") {
			return catalog.App{}, errBack
		}
		n, err := strconv.Atoi(choice)
		if err != nil {
			m.warn("Please enter a valid number.")
			continue
		}
		if n < 1 || n > len(top) {
			m.warn(fmt.Sprintf("Please enter a number between 1 and %d.", len(top)))
			continue
		}
		return top[n-1], nil
	}
}

func (m *menu) search() (catalog.App, error) {
	for {
		query, err := m.prompt("Enter search term (or 'b' to go back): ")
		if err != nil {
			return catalog.App{}, err
		}
		if strings.EqualFold(query, "b") {
			return catalog.App{}, errBack
		}
		if query == "" {
			m.warn("Please enter a search term.")
			continue
		}

		results := m.catalog.Search(query, 0)
		if len(results) == 0 {
			m.warn(fmt.Sprintf("No applications found matching %q", query))
			continue
		}

		app, err := m.paginate(results)
		if errors.Is(err, errBack) {
			continue
		}
		return app, err
	}
}

// paginate lets the user page through results and pick one by its overall number
func (m *menu) paginate(results []catalog.App) (catalog.App, error) {
	index := 0
	for {
		page := catalog.Paginate(results, searchPageSize, index)
		fmt.Fprintln(m.out)
		printApps(m.out, fmt.Sprintf("SEARCH RESULTS (%d-%d of %d)", page.Start+1, page.Start+len(page.Items), len(results)), page.Items, page.Start)
		if page.Total > 1 {
			fmt.Fprintln(m.out, mutedStyle.Render("Use 'n' for next page, 'p' for previous page, or enter number to select"))
		}

		choice, err := m.prompt("Enter number to select, 'n' for next, 'p' for previous, or 'b' to go back: ")
		if err != nil {
			return catalog.App{}, err
		}

		switch strings.ToLower(choice) {
		case "b":
			return catalog.App{}, errBack
		case "n":
			if !page.HasNext() {
				m.warn("Already on last page.")
				continue
			}
			index++
		case "p":
			if !page.HasPrev() {
				m.warn("Already on first page.")
				continue
			}
			index--
		default:
			n, err := strconv.Atoi(choice)
			if err != nil {
				m.warn("Please enter a valid number or command.")
				continue
			}
			if n < 1 || n > len(results) {
				m.warn("Please enter a valid number.")
				continue
			}
			return results[n-1], nil
		}
	}
}

func (m *menu) custom() (catalog.App, error) {
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, headingStyle.Render("=== CUSTOM CLIENT ID ==="))

	clientID, err := m.prompt("Enter client ID: ")
	if err != nil {
		return catalog.App{}, err
	}
	if clientID == "" {
		m.warn("Client ID cannot be empty.")
		return catalog.App{}, errBack
	}

	scope, err := m.prompt(fmt.Sprintf("Enter scope (default: %s): ", deviceflow.DefaultScope))
	if err != nil {
		return catalog.App{}, err
	}
	if scope == "" {
		scope = deviceflow.DefaultScope
	}

	if app, ok := m.catalog.Lookup(clientID); ok {
		app.Scope = scope
		return app, nil
	}
	short := clientID
	if len(short) > 8 {
		short = short[:8] + "..."
	}
	return catalog.App{Name: fmt.Sprintf("Custom App (%s)", short), ClientID: clientID, Scope: scope}, nil
}

// prompt reads one trimmed line. End of input maps to errQuit.
func (m *menu) prompt(label string) (string, error) {
	fmt.Fprint(m.out, labelStyle.Render(label))
	line, err := m.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			return "", errQuit
		}
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (m *menu) warn(msg string) {
	fmt.Fprintln(m.out, errorStyle.Render("[!] "+msg))
}
