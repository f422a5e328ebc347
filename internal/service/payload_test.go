package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharding/legistrack/internal/config"
	"github.com/jharding/legistrack/internal/model"
)

func TestDetailPayloadUnmarshalSingle(t *testing.T) {
	raw := []byte(`{"congress":117,"type":"HR","number":"21","title":"Test Act","updateDate":"2022-09-29"}`)

	var p DetailPayload
	require.NoError(t, json.Unmarshal(raw, &p))

	require.NotNil(t, p.Single)
	assert.Nil(t, p.Multiple)
	assert.Equal(t, "HR", p.Single.Type)
	assert.Equal(t, 117, p.Single.Congress)
}

func TestDetailPayloadUnmarshalMultiple(t *testing.T) {
	raw := []byte(`[
		{"congress":11,"type":"HR","number":"5","updateDate":"2020-01-01"},
		{"congress":11,"type":"HR","number":"5","updateDate":"2021-06-15"}
	]`)

	var p DetailPayload
	require.NoError(t, json.Unmarshal(raw, &p))

	assert.Nil(t, p.Single)
	require.Len(t, p.Multiple, 2)
}

func TestResolvePicksLatestUpdateAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := DetailPayload{Multiple: []BillDetail{
		{Congress: 11, Type: "HR", Number: "5", UpdateDate: "2020-01-01"},
		{Congress: 11, Type: "HR", Number: "5", UpdateDate: "2021-06-15"},
	}}

	key := model.NewBillKey(11, "HR", "5")
	chosen, err := p.Resolve(config.HistoricalPickLatestUpdate, key, logger)
	require.NoError(t, err)

	assert.Equal(t, "2021-06-15", chosen.UpdateDate)
	assert.Contains(t, buf.String(), "multiple historical detail entries found")
	assert.Contains(t, buf.String(), "entries=2")
}

func TestResolveFirstPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	p := DetailPayload{Multiple: []BillDetail{
		{UpdateDate: "2020-01-01"},
		{UpdateDate: "2021-06-15"},
	}}

	chosen, err := p.Resolve(config.HistoricalPickFirst, model.NewBillKey(11, "HR", "5"), logger)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01", chosen.UpdateDate)
}

func TestResolveSingleBypassesPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	p := DetailPayload{Single: &BillDetail{UpdateDate: "2022-09-29"}}
	chosen, err := p.Resolve(config.HistoricalPickLatestUpdate, model.NewBillKey(117, "HR", "21"), logger)
	require.NoError(t, err)
	assert.Equal(t, "2022-09-29", chosen.UpdateDate)
}

func TestResolveEmptyList(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	p := DetailPayload{}
	_, err := p.Resolve(config.HistoricalPickLatestUpdate, model.NewBillKey(11, "HR", "5"), logger)
	assert.Error(t, err)
}

func TestRelatedBillsNodeShapes(t *testing.T) {
	var bare RelatedBillsNode
	require.NoError(t, json.Unmarshal([]byte(`[{"congress":117,"type":"S","number":"400"}]`), &bare))
	require.Len(t, bare.Items, 1)
	assert.Equal(t, "S", bare.Items[0].Type)

	var wrapped RelatedBillsNode
	require.NoError(t, json.Unmarshal([]byte(`{"item":[{"congress":117,"type":"HR","number":"22"}],"url":"https://example.test"}`), &wrapped))
	require.Len(t, wrapped.Items, 1)
	assert.Equal(t, "https://example.test", wrapped.URL)
}
