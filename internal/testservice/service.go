// Package testservice is the reference service exercised by the server's
// integration tests and examples.
package testservice

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/mnehpets/httprpc/cursor"
	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
	"github.com/mnehpets/httprpc/sqlparams"
)

//go:embed views
var views embed.FS

// Views returns the templates referenced by the service's operations.
func Views() fs.FS {
	sub, err := fs.Sub(views, "views")
	if err != nil {
		panic(err)
	}
	return sub
}

const testDataQuery = "select * from test where a = :a or b = :b or c = coalesce(:c, 4.0)"

// Service implements the reference operations. DB may be nil, in which case
// testData reports 503.
type Service struct {
	DB       *sql.DB
	testData *sqlparams.Parameters
}

// New returns a Service querying db through driverName's placeholder style.
func New(db *sql.DB, driverName string) (*Service, error) {
	p, err := sqlparams.ParseString(testDataQuery, sqlparams.WithPlaceholder(sqlparams.PlaceholderFor(driverName)))
	if err != nil {
		return nil, fmt.Errorf("testservice: %w", err)
	}
	return &Service{DB: db, testData: p}, nil
}

func (s *Service) Definitions() []rpc.Definition {
	return []rpc.Definition{
		{Path: "/sum", Func: Sum, Params: []string{"a", "b"}},
		{Path: "/sumAll", Func: SumAll, Params: []string{"values"}},
		{Path: "/inverse", Func: Inverse, Params: []string{"value"}},
		{Path: "/characters", Func: Characters, Params: []string{"text"}},
		{Method: "POST", Path: "/selection", Func: Selection, Params: []string{"items"}},
		{Path: "/map", Func: Map, Params: []string{"map"}},
		{Path: "/tree", Func: Tree},
		{
			Method: "POST",
			Path:   "/statistics",
			Func:   Compute,
			Params: []string{"values"},
			Templates: []rpc.Template{
				{Name: "statistics.html", ContentType: "text/html"},
				{Name: "statistics.txt", ContentType: "text/plain"},
			},
		},
		{
			Path: "/testData",
			Func: s.TestData,
			Templates: []rpc.Template{
				{Name: "testdata_mobile.html", ContentType: "text/html", UserAgent: ".*(Mobile|Android).*"},
				{Name: "testdata.html", ContentType: "text/html"},
			},
		},
		{Path: "/void", Func: func() {}},
		{Path: "/null", Func: func() *string { return nil }},
		{Path: "/localeCode", Func: LocaleCode},
		{Path: "/userName", Func: rpc.UserName},
		{Path: "/userRoleStatus", Func: UserRoleStatus, Params: []string{"role"}},
		{Method: "POST", Path: "/attachmentInfo", Func: AttachmentInfo},
	}
}

func Sum(a, b float64) float64 {
	return a + b
}

func SumAll(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func Inverse(v bool) bool {
	return !v
}

// Characters splits text into its characters. A missing text yields null.
func Characters(text *string) []string {
	if text == nil {
		return nil
	}
	chars := make([]string, 0, len(*text))
	for _, r := range *text {
		chars = append(chars, string(r))
	}
	return chars
}

func Selection(items []string) string {
	return strings.Join(items, ", ")
}

func Map(m map[string]int) map[string]int {
	return m
}

// TreeNode is a node of the tree returned by Tree.
type TreeNode struct {
	Name     string      `json:"name"`
	Leaf     bool        `json:"leaf"`
	Children []*TreeNode `json:"children"`
}

func branch(name string, children ...*TreeNode) *TreeNode {
	return &TreeNode{Name: name, Children: children}
}

func leaves(names ...string) []*TreeNode {
	nodes := make([]*TreeNode, len(names))
	for i, n := range names {
		nodes[i] = &TreeNode{Name: n, Leaf: true}
	}
	return nodes
}

// Tree returns the seasons of the year and their months.
func Tree() *TreeNode {
	return branch("Seasons",
		branch("Winter", leaves("January", "February", "March")...),
		branch("Spring", leaves("April", "May", "June")...),
		branch("Summer", leaves("July", "August", "September")...),
		branch("Fall", leaves("October", "November", "December")...),
	)
}

type Statistics struct {
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Average float64 `json:"average"`
}

// Compute summarises values. The average of no values is 0.
func Compute(values []float64) Statistics {
	st := Statistics{Count: len(values), Sum: SumAll(values)}
	if st.Count > 0 {
		st.Average = st.Sum / float64(st.Count)
	}
	return st
}

// TestData streams the rows of the test table matching a = "hello" or b = 3.
// The cursor owns the prepared statement and closes it with the rows.
func (s *Service) TestData(ctx context.Context) (*cursor.Cursor, error) {
	if s.DB == nil {
		return nil, endpoint.Error(http.StatusServiceUnavailable, "no database configured", nil)
	}
	stmt, err := s.testData.Prepare(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	rows, err := s.testData.Query(ctx, stmt, map[string]any{"a": "hello", "b": 3})
	if err != nil {
		_ = stmt.Close()
		return nil, err
	}
	return cursor.New(rows, cursor.Release(stmt))
}

// LocaleCode formats the request locale as language_COUNTRY, leaving the
// country empty when the locale names none.
func LocaleCode(ctx context.Context) string {
	tag := rpc.Locale(ctx)
	base, _ := tag.Base()
	country := ""
	if region, conf := tag.Region(); conf == language.Exact {
		country = region.String()
	}
	return base.String() + "_" + country
}

func UserRoleStatus(ctx context.Context, role string) bool {
	return rpc.HasRole(ctx, role)
}

type AttachmentSummary struct {
	Name        string `json:"name"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Bytes       int64  `json:"bytes"`
	Checksum    int64  `json:"checksum"`
}

// AttachmentInfo reads every uploaded attachment, reporting its length and
// the sum of its bytes.
func AttachmentInfo(ctx context.Context) ([]AttachmentSummary, error) {
	as := rpc.Attachments(ctx)
	out := make([]AttachmentSummary, 0, len(as))
	for _, a := range as {
		info := AttachmentSummary{Name: a.Name(), FileName: a.FileName(), ContentType: a.ContentType(), Size: a.Size()}
		err := a.Use(func(r io.Reader) error {
			buf := make([]byte, 4096)
			for {
				n, err := r.Read(buf)
				for _, b := range buf[:n] {
					info.Bytes++
					info.Checksum += int64(b)
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
			}
		})
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", a.Name(), err)
		}
		out = append(out, info)
	}
	return out, nil
}
