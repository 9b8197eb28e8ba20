package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRecords(t *testing.T, svc *ImportService, kind models.EntityKind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, svc.db.Model(models.NewRecord(kind)).Count(&n).Error)
	return n
}

func TestResolveColumns(t *testing.T) {
	fields := []models.FieldDefinition{
		{ID: 1, Name: "source", Label: "Lead Source", FieldType: models.FieldTypeSelect, IsSystem: true},
		{ID: 2, Name: "ticket_size", Label: "Ticket Size", FieldType: models.FieldTypeNumber},
		{ID: 3, Name: "fund", Label: "Fund Name", FieldType: models.FieldTypeText},
	}
	header := []string{"Full Name", "email", " ticket size ", "fund", "Lead Source", "unknown", "Email"}

	cols := resolveColumns(header, fields)

	assert.Equal(t, column{kind: columnStatic, static: "full_name"}, cols[0])
	assert.Equal(t, column{kind: columnStatic, static: "email"}, cols[1])
	assert.Equal(t, uint(2), cols[2].field.ID, "dynamic columns match by label")
	assert.Equal(t, uint(3), cols[3].field.ID, "then by machine name")
	assert.Equal(t, column{kind: columnStatic, static: "source"}, cols[4], "system fields write the native column")
	assert.Equal(t, columnIgnored, cols[5].kind)
	assert.Equal(t, columnIgnored, cols[6].kind, "repeated columns are ignored")
}

func TestImport_EndToEnd(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	ctx := context.Background()
	addField(t, db, models.KindLead, CreateFieldRequest{Label: "Ticket Size", FieldType: models.FieldTypeNumber, IsRequired: true})

	file := "full_name,email,phone,Ticket Size\n" +
		"Ada Lovelace,ada@example.com,555 0100,250000\n" +
		"Grace Hopper,grace@example.com,555 0200,\n" +
		"Alan Turing,alan@example.com,555 0100,100000\n"

	result, err := svc.Import(ctx, models.KindLead, strings.NewReader(file))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 2, result.SuccessCount)
	assert.GreaterOrEqual(t, result.ErrorCount, 1)
	assert.Equal(t, []RowError{
		{Row: 3, Field: "Ticket Size", Message: "Ticket Size is required"},
		{Row: 4, Field: "phone", Message: `phone "555 0100" already belongs to another record`},
	}, result.Errors)

	assert.Equal(t, int64(2), countRecords(t, svc, models.KindLead))

	var log models.ImportLog
	require.NoError(t, db.Where("batch_id = ?", result.BatchID).First(&log).Error)
	assert.Equal(t, 3, log.TotalRows)
	assert.Equal(t, 2, log.SuccessCount)
}

func TestImport_InvalidEmailDoesNotStopRow(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	ctx := context.Background()
	fund := addField(t, db, models.KindLead, CreateFieldRequest{Label: "Fund", FieldType: models.FieldTypeText})

	file := "full_name,email,Fund\n" +
		"Ada,ada@example.com,Engine Capital\n" +
		"Grace,grace@@bad,Navy Ventures\n" +
		"Alan,alan@example.com,Bletchley Partners\n"

	result, err := svc.Import(ctx, models.KindLead, strings.NewReader(file))
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 3, result.SuccessCount, "the row with a bad email still counts")
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, RowError{Row: 3, Field: "email", Message: "invalid email address"}, result.Errors[0])

	var grace models.Lead
	require.NoError(t, db.Where("full_name = ?", "Grace").First(&grace).Error)
	assert.Nil(t, grace.Email)
	values, err := NewAttributeStore(db).ValueMap(ctx, models.KindLead, grace.ID)
	require.NoError(t, err)
	assert.Equal(t, "Navy Ventures", values[fund.ID], "the other fields of the row persist")
}

func TestImport_ReimportUpdatesByNaturalKey(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	ctx := context.Background()
	addField(t, db, models.KindLead, CreateFieldRequest{Label: "Stages", FieldType: models.FieldTypeMultiSelect})

	file := "full_name,email,status,Stages\n" +
		"Ada,ada@example.com,contacted,seed;series_a\n" +
		"Grace,GRACE@example.com,,seed\n"

	for i := 0; i < 2; i++ {
		result, err := svc.Import(ctx, models.KindLead, strings.NewReader(file))
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 2, result.SuccessCount)
	}
	assert.Equal(t, int64(2), countRecords(t, svc, models.KindLead))

	var ada models.Lead
	require.NoError(t, db.Where("email = ?", "ada@example.com").First(&ada).Error)
	assert.Equal(t, "contacted", ada.Status)

	values, err := NewAttributeStore(db).GetValues(ctx, models.KindLead, ada.ID)
	require.NoError(t, err)
	got := make(map[string]string)
	for _, v := range values {
		got[v.Field.Name] = v.Value
	}
	assert.Equal(t, `["seed","series_a"]`, got["stages"])
	assert.Equal(t, "contacted", got["status"], "system attributes are mirrored")
}

func TestImport_InvestorNaturalKeyFallsBackToPhone(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	ctx := context.Background()

	_, err := svc.Import(ctx, models.KindInvestor, strings.NewReader("full_name,phone,company\nAda,555 0100,Engine\n"))
	require.NoError(t, err)
	result, err := svc.Import(ctx, models.KindInvestor, strings.NewReader("full_name,phone,company\n,555 0100,Analytical Engine\n"))
	require.NoError(t, err)

	assert.True(t, result.Success, "existing investors need no name: %+v", result.Errors)
	assert.Equal(t, int64(1), countRecords(t, svc, models.KindInvestor))

	var inv models.Investor
	require.NoError(t, db.First(&inv).Error)
	assert.Equal(t, "Ada", inv.FullName, "blank cells keep stored values")
	assert.Equal(t, "Analytical Engine", inv.Company)
}

func TestImport_InvestorUnknownEmailFallsBackToPhone(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	ctx := context.Background()

	_, err := svc.Import(ctx, models.KindInvestor, strings.NewReader("full_name,email,phone\nAda,ada@old.com,555 0100\n"))
	require.NoError(t, err)
	result, err := svc.Import(ctx, models.KindInvestor, strings.NewReader("full_name,email,phone,company\nAda,ada@new.com,555 0100,Engine\n"))
	require.NoError(t, err)

	assert.True(t, result.Success, "%+v", result.Errors)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, int64(1), countRecords(t, svc, models.KindInvestor))

	var inv models.Investor
	require.NoError(t, db.First(&inv).Error)
	assert.Equal(t, "ada@new.com", models.Deref(inv.Email))
	assert.Equal(t, "Engine", inv.Company)
}

func TestImport_Quoting(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	ctx := context.Background()

	file := "full_name,email,notes\n" +
		"\"Lovelace, Ada\",ada@example.com,\"said \"\"hello\"\"\nthen left\"\n" +
		",,\n" +
		"Grace,grace@example.com,plain\n"

	result, err := svc.Import(ctx, models.KindLead, strings.NewReader(file))
	require.NoError(t, err)
	assert.True(t, result.Success, "%+v", result.Errors)
	assert.Equal(t, 2, result.TotalRows, "blank rows are skipped")

	var ada models.Lead
	require.NoError(t, db.Where("email = ?", "ada@example.com").First(&ada).Error)
	assert.Equal(t, "Lovelace, Ada", ada.FullName)
	assert.Equal(t, "said \"hello\"\nthen left", ada.Notes)
}

func TestImport_MissingNameIsRowError(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)

	result, err := svc.Import(context.Background(), models.KindLead, strings.NewReader("email\nnobody@example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, []RowError{{Row: 2, Field: "full_name", Message: "full_name is required"}}, result.Errors)
}

func TestImport_Limits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := newImportService(db).Import(ctx, models.KindLead, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyImport)

	small := NewImportService(db, fieldcodec.Default, config.ImportConfig{MaxRows: 1})
	_, err = small.Import(ctx, models.KindLead, strings.NewReader("full_name\nA\nB\n"))
	assert.ErrorIs(t, err, ErrTooManyRows)

	_, err = small.Import(ctx, "company", strings.NewReader("full_name\nA\n"))
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestExport_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	records := newRecordService(db)
	ctx := context.Background()

	fund := addField(t, db, models.KindLead, CreateFieldRequest{Label: "Fund, Name", FieldType: models.FieldTypeText})
	stages := addField(t, db, models.KindLead, CreateFieldRequest{Label: "Stages", FieldType: models.FieldTypeCheckbox})
	size := addField(t, db, models.KindLead, CreateFieldRequest{Label: "Ticket Size", FieldType: models.FieldTypeNumber})

	_, err := records.Create(ctx, models.KindLead, &SaveRecordRequest{
		FullName: "Ada", Email: "ada@example.com", Source: "event", Notes: "line one\nline \"two\"",
		CustomFields: map[string]interface{}{
			idKey(fund): "Engine, Inc", idKey(stages): "seed;series_a", idKey(size): "1,500",
		},
	}, 0)
	require.NoError(t, err)
	_, err = records.Create(ctx, models.KindLead, &SaveRecordRequest{FullName: "Grace", Email: "grace@example.com"}, 0)
	require.NoError(t, err)

	snapshot := func() map[string]map[string]string {
		var rows []models.AttributeValue
		require.NoError(t, db.Preload("Field").Where("entity_kind = ?", models.KindLead).Find(&rows).Error)
		var leads []models.Lead
		require.NoError(t, db.Find(&leads).Error)
		emails := make(map[uint]string)
		for _, l := range leads {
			emails[l.ID] = models.Deref(l.Email)
		}
		out := make(map[string]map[string]string)
		for _, r := range rows {
			key := emails[r.EntityID]
			if out[key] == nil {
				out[key] = make(map[string]string)
			}
			out[key][r.Field.Name] = r.Value
		}
		return out
	}
	before := snapshot()

	var buf bytes.Buffer
	n, err := svc.Export(ctx, models.KindLead, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	parsed, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"full_name", "email", "phone", "company", "source", "status", "priority", "notes", "Fund, Name", "Stages", "Ticket Size"}, parsed[0])
	assert.Equal(t, "seed;series_a", parsed[1][9])

	result, err := svc.Import(ctx, models.KindLead, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, result.Success, "%+v", result.Errors)
	assert.Equal(t, int64(2), countRecords(t, svc, models.KindLead))
	assert.Equal(t, before, snapshot())
}

func TestExport_AmbiguousLabelsRoundTripByMachineName(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	records := newRecordService(db)
	ctx := context.Background()

	budgetA := addField(t, db, models.KindLead, CreateFieldRequest{Name: "budget_a", Label: "Budget A", FieldType: models.FieldTypeText})
	budgetB := addField(t, db, models.KindLead, CreateFieldRequest{Name: "budget_b", Label: "Budget B", FieldType: models.FieldTypeText})
	memo := addField(t, db, models.KindLead, CreateFieldRequest{Name: "extra_notes", Label: "Memo", FieldType: models.FieldTypeText})

	_, err := NewFieldService(db).CreateField(ctx, models.KindLead, &CreateFieldRequest{Name: "budget_c", Label: "budget a", FieldType: models.FieldTypeText})
	require.ErrorIs(t, err, ErrDuplicateFieldLabel)

	// rows written before labels were checked
	require.NoError(t, db.Model(budgetA).Update("label", "Budget").Error)
	require.NoError(t, db.Model(budgetB).Update("label", "Budget").Error)
	require.NoError(t, db.Model(memo).Update("label", "Notes").Error)

	detail, err := records.Create(ctx, models.KindLead, &SaveRecordRequest{
		FullName: "Ada", Email: "ada@example.com",
		CustomFields: map[string]interface{}{idKey(budgetA): "one", idKey(budgetB): "two", idKey(memo): "memo"},
	}, 0)
	require.NoError(t, err)
	store := NewAttributeStore(db)
	before, err := store.ValueMap(ctx, models.KindLead, detail.Record.Base().ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = svc.Export(ctx, models.KindLead, &buf)
	require.NoError(t, err)
	parsed, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"budget_a", "budget_b", "extra_notes"}, parsed[0][len(models.StaticFields):])

	result, err := svc.Import(ctx, models.KindLead, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, result.Success, "%+v", result.Errors)

	after, err := store.ValueMap(ctx, models.KindLead, detail.Record.Base().ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "two", after[budgetB.ID])
}

func TestExportTemplate(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	addField(t, db, models.KindInvestor, CreateFieldRequest{Label: "Check Size", FieldType: models.FieldTypeNumber})

	var buf bytes.Buffer
	require.NoError(t, svc.ExportTemplate(context.Background(), models.KindInvestor, &buf))
	assert.Equal(t, "full_name,email,phone,company,source,status,priority,notes,Check Size\n", buf.String())
}

func TestListImportLogs(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db)
	ctx := context.Background()

	_, err := svc.ImportBatch(ctx, models.KindLead, strings.NewReader("full_name\nA\n"), ImportMeta{FileName: "leads.csv", ActorID: 2})
	require.NoError(t, err)
	_, err = svc.Import(ctx, models.KindInvestor, strings.NewReader("full_name\nB\n"))
	require.NoError(t, err)

	logs, err := svc.ListImportLogs(ctx, models.KindLead, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), logs.Total)
	assert.Equal(t, "leads.csv", logs.Items[0].FileName)
	assert.Equal(t, uint(2), logs.Items[0].CreatedBy)

	all, err := svc.ListImportLogs(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
}
