package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"census/internal/citizens/handler/mocks"
	"census/internal/citizens/models"
	id "census/pkg/domain"
	dErrors "census/pkg/domain-errors"
)

var fixedNow = time.Date(2019, time.August, 20, 12, 0, 0, 0, time.UTC)

type ImportHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestImportHandlerSuite(t *testing.T) {
	suite.Run(t, new(ImportHandlerSuite))
}

func (s *ImportHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.service, logger, nil,
		WithClock(func() time.Time { return fixedNow }),
		WithMaxBodyBytes(1<<20),
	)
	s.router = chi.NewRouter()
	s.router.Use(chimw.StripSlashes)
	h.Register(s.router)
}

func (s *ImportHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

const importBody = `{"citizens":[
	{"citizen_id":1,"town":"Москва","street":"Льва Толстого","building":"16к7стр5","apartment":7,
	 "name":"Иванов Иван Иванович","birth_date":"26.12.1986","gender":"male","relatives":[2]},
	{"citizen_id":2,"town":"Москва","street":"Льва Толстого","building":"16к7стр5","apartment":7,
	 "name":"Иванов Сергей Иванович","birth_date":"01.04.1997","gender":"male","relatives":[1]}
]}`

func (s *ImportHandlerSuite) TestCreateImport() {
	s.Run("valid import returns the new id", func() {
		s.service.EXPECT().CreateImport(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, batch *models.ImportBatch) (id.ImportID, error) {
				s.Require().Len(batch.Citizens, 2)
				s.Equal([]id.CitizenID{2}, batch.Citizens[0].Relatives)
				return 7, nil
			})

		rr := s.do(http.MethodPost, "/imports", importBody)

		s.Equal(http.StatusCreated, rr.Code)
		s.JSONEq(`{"data":{"import_id":7}}`, rr.Body.String())
	})

	s.Run("trailing slash is accepted", func() {
		s.service.EXPECT().CreateImport(gomock.Any(), gomock.Any()).Return(id.ImportID(8), nil)

		rr := s.do(http.MethodPost, "/imports/", importBody)
		s.Equal(http.StatusCreated, rr.Code)
	})

	s.Run("asymmetric relatives never reach the service", func() {
		body := strings.Replace(importBody, `"relatives":[1]`, `"relatives":[]`, 1)

		rr := s.do(http.MethodPost, "/imports", body)

		s.Equal(http.StatusBadRequest, rr.Code)
		resp := decode(s.T(), rr)
		s.Equal("validation_error", resp["error"])
		s.Contains(resp["fields"], "citizens")
	})

	s.Run("birth date today is rejected", func() {
		body := strings.Replace(importBody, "26.12.1986", "20.08.2019", 1)

		rr := s.do(http.MethodPost, "/imports", body)

		s.Equal(http.StatusBadRequest, rr.Code)
		fields := decode(s.T(), rr)["fields"].(map[string]any)
		s.Contains(fields, "citizens[0].birth_date")
	})

	s.Run("malformed json", func() {
		rr := s.do(http.MethodPost, "/imports", `{"citizens":`)

		s.Equal(http.StatusBadRequest, rr.Code)
		s.Equal("bad_request", decode(s.T(), rr)["error"])
	})

	s.Run("integrity failure is a server error", func() {
		s.service.EXPECT().CreateImport(gomock.Any(), gomock.Any()).
			Return(id.ImportID(0), dErrors.New(dErrors.CodeIntegrity, "duplicate edge"))

		rr := s.do(http.MethodPost, "/imports", importBody)

		s.Equal(http.StatusInternalServerError, rr.Code)
		s.NotContains(rr.Body.String(), "duplicate edge")
	})
}

func (s *ImportHandlerSuite) TestListCitizens() {
	s.Run("serializes citizens", func() {
		s.service.EXPECT().ListCitizens(gomock.Any(), id.ImportID(3)).Return([]models.Citizen{{
			CitizenID: 1,
			Town:      "Керчь",
			Street:    "Иосифа Бродского",
			Building:  "2",
			Apartment: 11,
			Name:      "Романова Мария Леонидовна",
			BirthDate: time.Date(1986, time.December, 23, 0, 0, 0, 0, time.UTC),
			Gender:    models.GenderFemale,
			Relatives: []id.CitizenID{5, 2},
		}}, nil)

		rr := s.do(http.MethodGet, "/imports/3/citizens", "")

		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"data":[{"citizen_id":1,"town":"Керчь","street":"Иосифа Бродского","building":"2",
			"apartment":11,"name":"Романова Мария Леонидовна","birth_date":"23.12.1986",
			"gender":"female","relatives":[2,5]}]}`, rr.Body.String())
	})

	s.Run("empty relatives serialize as an array", func() {
		s.service.EXPECT().ListCitizens(gomock.Any(), id.ImportID(3)).
			Return([]models.Citizen{{CitizenID: 1, Gender: models.GenderMale}}, nil)

		rr := s.do(http.MethodGet, "/imports/3/citizens", "")

		s.Contains(rr.Body.String(), `"relatives":[]`)
	})

	s.Run("unknown import", func() {
		s.service.EXPECT().ListCitizens(gomock.Any(), id.ImportID(9)).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "import not found"))

		rr := s.do(http.MethodGet, "/imports/9/citizens", "")
		s.Equal(http.StatusNotFound, rr.Code)
	})

	s.Run("non-numeric import id is not found", func() {
		rr := s.do(http.MethodGet, "/imports/abc/citizens", "")
		s.Equal(http.StatusNotFound, rr.Code)

		rr = s.do(http.MethodGet, "/imports/-1/citizens", "")
		s.Equal(http.StatusNotFound, rr.Code)
	})
}

func (s *ImportHandlerSuite) TestUpdateCitizen() {
	s.Run("partial update", func() {
		s.service.EXPECT().UpdateCitizen(gomock.Any(), id.ImportID(3), id.CitizenID(1), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.ImportID, _ id.CitizenID, patch *models.CitizenPatch) (*models.Citizen, error) {
				s.Require().NotNil(patch.Apartment)
				s.Equal(int64(12), *patch.Apartment)
				s.Nil(patch.Relatives)
				return &models.Citizen{
					CitizenID: 1,
					Apartment: 12,
					BirthDate: time.Date(1986, time.December, 26, 0, 0, 0, 0, time.UTC),
					Gender:    models.GenderMale,
					Relatives: []id.CitizenID{2},
				}, nil
			})

		rr := s.do(http.MethodPatch, "/imports/3/citizens/1", `{"apartment":12}`)

		s.Equal(http.StatusOK, rr.Code)
		data := decode(s.T(), rr)["data"].(map[string]any)
		s.InDelta(12, data["apartment"], 0)
		s.Equal("26.12.1986", data["birth_date"])
	})

	s.Run("citizen_id in body is rejected", func() {
		rr := s.do(http.MethodPatch, "/imports/3/citizens/1", `{"citizen_id":1}`)

		s.Equal(http.StatusBadRequest, rr.Code)
		fields := decode(s.T(), rr)["fields"].(map[string]any)
		s.Contains(fields, "citizen_id")
	})

	s.Run("empty patch is rejected", func() {
		rr := s.do(http.MethodPatch, "/imports/3/citizens/1", `{}`)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("unknown relative", func() {
		s.service.EXPECT().UpdateCitizen(gomock.Any(), id.ImportID(3), id.CitizenID(1), gomock.Any()).
			Return(nil, dErrors.WithFields(dErrors.CodeNotFound, "relatives not found", map[string][]string{
				"relatives": {"unknown citizen ids: 400"},
			}))

		rr := s.do(http.MethodPatch, "/imports/3/citizens/1", `{"relatives":[400]}`)

		s.Equal(http.StatusNotFound, rr.Code)
		s.Contains(rr.Body.String(), "unknown citizen ids: 400")
	})

	s.Run("non-numeric citizen id is not found", func() {
		rr := s.do(http.MethodPatch, "/imports/3/citizens/x1", `{"apartment":1}`)
		s.Equal(http.StatusNotFound, rr.Code)
	})
}

func (s *ImportHandlerSuite) TestBirthdays() {
	s.service.EXPECT().BirthdayStats(gomock.Any(), id.ImportID(3)).Return(models.BirthdayStats{
		"1":  {{CitizenID: 102, Presents: 1}},
		"10": {{CitizenID: 101, Presents: 1}},
	}, nil)

	rr := s.do(http.MethodGet, "/imports/3/citizens/birthdays", "")

	s.Equal(http.StatusOK, rr.Code)
	data := decode(s.T(), rr)["data"].(map[string]any)
	s.Len(data, 12)
	s.Equal([]any{map[string]any{"citizen_id": float64(102), "presents": float64(1)}}, data["1"])
	s.Equal([]any{}, data["2"])
}

func (s *ImportHandlerSuite) TestAgePercentiles() {
	s.service.EXPECT().AgePercentiles(gomock.Any(), id.ImportID(3)).
		DoAndReturn(func(ctx context.Context, _ id.ImportID) ([]models.TownAgePercentiles, error) {
			return []models.TownAgePercentiles{{Town: "Москва", P50: 29, P75: 29, P99: 29}}, nil
		})

	rr := s.do(http.MethodGet, "/imports/3/towns/stat/percentile/age", "")

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"data":[{"town":"Москва","p50":29,"p75":29,"p99":29}]}`, rr.Body.String())
}

func TestToBirthdaysResponseFillsMonths(t *testing.T) {
	out := toBirthdaysResponse(nil)
	assert.Len(t, out, 12)
	for _, list := range out {
		assert.NotNil(t, list)
		assert.Empty(t, list)
	}
}
