// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-allocate/allocate"
	"github.com/penny-vault/pv-allocate/data"
	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/penny-vault/pv-allocate/handler"
	"github.com/penny-vault/pv-allocate/middleware"
	"github.com/penny-vault/pv-allocate/report"
	"github.com/penny-vault/pv-allocate/router"
)

type staticProvider struct {
	series dataframe.Map
}

func (p *staticProvider) DataType() string {
	return "static"
}

func (p *staticProvider) GetDataForPeriod(ctx context.Context, symbol string, begin, end time.Time) (*dataframe.DataFrame, error) {
	df, ok := p.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, symbol)
	}
	return df.Trim(begin, end).Copy(), nil
}

// prices builds n daily closes from a repeating pattern of daily returns
func prices(symbol string, n int, pattern ...float64) *dataframe.DataFrame {
	df := &dataframe.DataFrame{ColNames: []string{symbol}}
	dt := time.Date(2022, 1, 3, 16, 0, 0, 0, time.UTC)
	price := 100.0
	for idx := 0; idx < n; idx++ {
		df.InsertRow(dt, price)
		if len(pattern) > 0 {
			price *= 1 + pattern[idx%len(pattern)]
		}
		dt = dt.AddDate(0, 0, 1)
	}
	return df
}

var _ = Describe("API", func() {
	var (
		app *fiber.App
	)

	BeforeEach(func() {
		provider := &staticProvider{
			series: dataframe.Map{
				"AAA":   prices("AAA", 200, 0.01, -0.005, 0.002),
				"BBB":   prices("BBB", 200, -0.002, 0.004, 0.001, 0.0),
				"CCC":   prices("CCC", 200, 0.003, -0.001),
				"FLAT1": prices("FLAT1", 200),
				"FLAT2": prices("FLAT2", 200),
			},
		}

		app = fiber.New()
		app.Use(middleware.NewLogger())
		router.SetupRoutes(app, handler.NewOptimizer(allocate.New(data.NewManager(provider, nil))))
	})

	post := func(body string) (int, []byte) {
		req := httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		content, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		return resp.StatusCode, content
	}

	It("answers health checks", func() {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/", nil))
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		ping := handler.PingResponse{}
		Expect(json.NewDecoder(resp.Body).Decode(&ping)).To(Succeed())
		Expect(ping.Status).To(Equal("success"))
	})

	It("returns the optimal allocation", func() {
		code, body := post(`{"symbols":["aaa","BBB","ccc"],"investment":50000,"samples":1000,"seed":7,"begin":"2022-01-01","end":"2022-12-31"}`)
		Expect(code).To(Equal(fiber.StatusOK), string(body))

		alloc := report.Allocation{}
		Expect(json.Unmarshal(body, &alloc)).To(Succeed())
		Expect(alloc.Investment).To(Equal(50000.0))
		Expect(alloc.Samples).To(Equal(1000))
		Expect(alloc.Holdings).To(HaveLen(3))
		Expect(alloc.Holdings[0].Symbol).To(Equal("AAA"))

		var total float64
		for _, holding := range alloc.Holdings {
			total += holding.Weight
		}
		Expect(total).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("is reproducible for a fixed seed", func() {
		body := `{"symbols":["AAA","BBB","CCC"],"samples":500,"seed":11,"begin":"2022-01-01","end":"2022-12-31"}`
		_, first := post(body)
		_, second := post(body)

		a1 := report.Allocation{}
		a2 := report.Allocation{}
		Expect(json.Unmarshal(first, &a1)).To(Succeed())
		Expect(json.Unmarshal(second, &a2)).To(Succeed())
		Expect(a1.Holdings).To(Equal(a2.Holdings))
		Expect(a1.Investment).To(Equal(allocate.DefaultInvestment))
	})

	DescribeTable("rejects invalid requests", func(body string) {
		code, _ := post(body)
		Expect(code).To(Equal(fiber.StatusBadRequest))
	},
		Entry("malformed JSON", `{"symbols":`),
		Entry("a single symbol", `{"symbols":["AAA"]}`),
		Entry("duplicate symbols", `{"symbols":["AAA","aaa"]}`),
		Entry("negative investment", `{"symbols":["AAA","BBB"],"investment":-10}`),
		Entry("negative samples", `{"symbols":["AAA","BBB"],"samples":-10}`),
		Entry("bad begin date", `{"symbols":["AAA","BBB"],"begin":"01/02/2022"}`),
		Entry("inverted range", `{"symbols":["AAA","BBB"],"begin":"2022-06-01","end":"2022-01-01"}`),
	)

	It("reports symbols without data as unprocessable", func() {
		code, _ := post(`{"symbols":["NOPE","NADA"],"begin":"2022-01-01","end":"2022-12-31"}`)
		Expect(code).To(Equal(fiber.StatusUnprocessableEntity))
	})

	It("reports a universe without risk as unprocessable", func() {
		code, _ := post(`{"symbols":["FLAT1","FLAT2"],"samples":100,"begin":"2022-01-01","end":"2022-12-31"}`)
		Expect(code).To(Equal(fiber.StatusUnprocessableEntity))
	})

	It("reports a window without prices as unprocessable", func() {
		code, _ := post(`{"symbols":["AAA","BBB"],"begin":"2030-01-01","end":"2030-12-31"}`)
		Expect(code).To(Equal(fiber.StatusUnprocessableEntity))
	})
})
