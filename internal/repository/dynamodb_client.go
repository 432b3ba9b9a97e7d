package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"footcare-triage/internal/domain"
)

const (
	pkPrefixPatient = "PATIENT#"
	pkPrefixSession = "SESSION#"
	skPrefixMsg     = "MSG#"
	skMeta          = "META#"

	entityPatient = "patient"
	entitySession = "session"
	entityMessage = "message"

	condNotExists = "attribute_not_exists(PK) AND attribute_not_exists(SK)"
	condExists    = "attribute_exists(PK)"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps patients, sessions and messages in a single DynamoDB table.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoStore creates a Store backed by the given table.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

func patientPK(id string) string { return pkPrefixPatient + id }
func sessionPK(id string) string { return pkPrefixSession + id }

// msgSK sorts messages chronologically within the session partition; the id
// suffix keeps keys unique when two messages share a timestamp.
func msgSK(ts time.Time, id string) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

func (c *DynamoStore) CreatePatient(ctx context.Context, in domain.PatientInput) (domain.Patient, error) {
	p := domain.Patient{
		ID:        domain.NewID(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: now(),
	}
	if err := c.putNew(ctx, patientItem(p)); err != nil {
		return domain.Patient{}, fmt.Errorf("repository: CreatePatient: %w", err)
	}
	return p, nil
}

func (c *DynamoStore) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	item, err := c.getMeta(ctx, patientPK(id))
	if err != nil {
		return domain.Patient{}, fmt.Errorf("repository: GetPatient: %w", err)
	}
	if item == nil {
		return domain.Patient{}, ErrNotFound
	}
	p, err := itemToPatient(item)
	if err != nil {
		return domain.Patient{}, fmt.Errorf("repository: GetPatient unmarshal: %w", err)
	}
	return p, nil
}

func (c *DynamoStore) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	items, err := c.scanEntity(ctx, entityPatient, "", nil)
	if err != nil {
		return nil, fmt.Errorf("repository: ListPatients: %w", err)
	}
	out := make([]domain.Patient, 0, len(items))
	for _, item := range items {
		p, err := itemToPatient(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListPatients unmarshal: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *DynamoStore) CreateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	ts := now()
	s = s.Clone()
	s.ID = domain.NewID()
	s.CreatedAt = ts
	s.UpdatedAt = ts
	if s.Conversation == nil {
		s.Conversation = []domain.ConversationEntry{}
	}
	if err := c.putNew(ctx, sessionItem(s)); err != nil {
		return domain.Session{}, fmt.Errorf("repository: CreateSession: %w", err)
	}
	return s, nil
}

func (c *DynamoStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	item, err := c.getMeta(ctx, sessionPK(id))
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession: %w", err)
	}
	if item == nil {
		return domain.Session{}, ErrNotFound
	}
	s, err := itemToSession(item)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession unmarshal: %w", err)
	}
	return s, nil
}

func (c *DynamoStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return c.listSessions(ctx, "", nil)
}

func (c *DynamoStore) ListSessionsByPatient(ctx context.Context, patientID string) ([]domain.Session, error) {
	return c.listSessions(ctx, "patientId = :pid", map[string]types.AttributeValue{
		":pid": &types.AttributeValueMemberS{Value: patientID},
	})
}

// UpdateSession reads the session, merges the patch and writes it back on the
// condition that the item still exists.
func (c *DynamoStore) UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (domain.Session, error) {
	s, err := c.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if err := patch.Apply(&s, now()); err != nil {
		return domain.Session{}, fmt.Errorf("repository: UpdateSession: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                sessionItem(s),
		ConditionExpression: aws.String(condExists),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.Session{}, ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("repository: UpdateSession: %w", err)
	}
	return s, nil
}

func (c *DynamoStore) CreateMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	m.ID = domain.NewID()
	m.CreatedAt = now()
	if err := c.putNew(ctx, messageItem(m)); err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
	}
	return m, nil
}

// ListMessagesBySession queries the session partition for MSG# items in
// chronological order, following pagination.
func (c *DynamoStore) ListMessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
	}

	msgs := make([]domain.Message, 0)
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMessagesBySession query: %w", err)
		}
		for _, item := range out.Items {
			m, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListMessagesBySession unmarshal: %w", err)
			}
			msgs = append(msgs, m)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return msgs, nil
}

func (c *DynamoStore) listSessions(ctx context.Context, filter string, values map[string]types.AttributeValue) ([]domain.Session, error) {
	items, err := c.scanEntity(ctx, entitySession, filter, values)
	if err != nil {
		return nil, fmt.Errorf("repository: ListSessions: %w", err)
	}
	out := make([]domain.Session, 0, len(items))
	for _, item := range items {
		s, err := itemToSession(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListSessions unmarshal: %w", err)
		}
		out = append(out, s)
	}
	sortSessionsNewestFirst(out)
	return out, nil
}

func (c *DynamoStore) getMeta(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func (c *DynamoStore) putNew(ctx context.Context, item map[string]types.AttributeValue) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String(condNotExists),
	})
	return err
}

// scanEntity scans the table for items of one entity type, with an optional
// extra filter, following pagination.
func (c *DynamoStore) scanEntity(ctx context.Context, entity, filter string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	expr := "#e = :entity"
	if filter != "" {
		expr += " AND " + filter
	}
	attrValues := map[string]types.AttributeValue{
		":entity": &types.AttributeValueMemberS{Value: entity},
	}
	for k, v := range values {
		attrValues[k] = v
	}
	in := &dynamodb.ScanInput{
		TableName:                 aws.String(c.tableName),
		FilterExpression:          aws.String(expr),
		ExpressionAttributeNames:  map[string]string{"#e": "entity"},
		ExpressionAttributeValues: attrValues,
	}

	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func patientItem(p domain.Patient) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: patientPK(p.ID)},
		"SK":        &types.AttributeValueMemberS{Value: skMeta},
		"entity":    &types.AttributeValueMemberS{Value: entityPatient},
		"id":        &types.AttributeValueMemberS{Value: p.ID},
		"name":      &types.AttributeValueMemberS{Value: p.Name},
		"email":     &types.AttributeValueMemberS{Value: p.Email},
		"phone":     &types.AttributeValueMemberS{Value: p.Phone},
		"createdAt": timeAttr(p.CreatedAt),
	}
}

func sessionItem(s domain.Session) map[string]types.AttributeValue {
	conv := make([]types.AttributeValue, 0, len(s.Conversation))
	for _, e := range s.Conversation {
		conv = append(conv, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role":      &types.AttributeValueMemberS{Value: string(e.Role)},
			"content":   &types.AttributeValueMemberS{Value: e.Content},
			"timestamp": timeAttr(e.Timestamp),
		}})
	}
	item := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: sessionPK(s.ID)},
		"SK":            &types.AttributeValueMemberS{Value: skMeta},
		"entity":        &types.AttributeValueMemberS{Value: entitySession},
		"id":            &types.AttributeValueMemberS{Value: s.ID},
		"patientId":     &types.AttributeValueMemberS{Value: s.PatientID},
		"issueCategory": &types.AttributeValueMemberS{Value: s.IssueCategory},
		"symptoms":      &types.AttributeValueMemberS{Value: s.Symptoms},
		"diagnosis":     &types.AttributeValueMemberS{Value: s.Diagnosis},
		"conversation":  &types.AttributeValueMemberL{Value: conv},
		"status":        &types.AttributeValueMemberS{Value: string(s.Status)},
		"createdAt":     timeAttr(s.CreatedAt),
		"updatedAt":     timeAttr(s.UpdatedAt),
	}
	if s.AppointmentDate != nil {
		item["appointmentDate"] = timeAttr(*s.AppointmentDate)
	}
	if s.FollowUpDate != nil {
		item["followUpDate"] = timeAttr(*s.FollowUpDate)
	}
	if s.SatisfactionScore != nil {
		item["satisfactionScore"] = &types.AttributeValueMemberN{Value: strconv.Itoa(*s.SatisfactionScore)}
	}
	if s.SatisfactionFeedback != nil {
		item["satisfactionFeedback"] = &types.AttributeValueMemberS{Value: *s.SatisfactionFeedback}
	}
	return item
}

func messageItem(m domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(m.SessionID)},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(m.CreatedAt, m.ID)},
		"entity":    &types.AttributeValueMemberS{Value: entityMessage},
		"id":        &types.AttributeValueMemberS{Value: m.ID},
		"sessionId": &types.AttributeValueMemberS{Value: m.SessionID},
		"role":      &types.AttributeValueMemberS{Value: string(m.Role)},
		"content":   &types.AttributeValueMemberS{Value: m.Content},
		"createdAt": timeAttr(m.CreatedAt),
	}
}

func itemToPatient(item map[string]types.AttributeValue) (domain.Patient, error) {
	var (
		p   domain.Patient
		err error
	)
	if p.ID, err = strAttr(item, "id"); err != nil {
		return domain.Patient{}, err
	}
	if p.CreatedAt, err = timeFromAttr(item, "createdAt"); err != nil {
		return domain.Patient{}, err
	}
	p.Name, _ = strAttr(item, "name")
	p.Email, _ = strAttr(item, "email")
	p.Phone, _ = strAttr(item, "phone")
	return p, nil
}

func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	var (
		s   domain.Session
		err error
	)
	if s.ID, err = strAttr(item, "id"); err != nil {
		return domain.Session{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Session{}, err
	}
	s.Status = domain.Status(status)
	if s.CreatedAt, err = timeFromAttr(item, "createdAt"); err != nil {
		return domain.Session{}, err
	}
	if s.UpdatedAt, err = timeFromAttr(item, "updatedAt"); err != nil {
		return domain.Session{}, err
	}
	s.PatientID, _ = strAttr(item, "patientId") // allow empty
	s.IssueCategory, _ = strAttr(item, "issueCategory")
	s.Symptoms, _ = strAttr(item, "symptoms")
	s.Diagnosis, _ = strAttr(item, "diagnosis")

	if s.Conversation, err = conversationFromAttr(item); err != nil {
		return domain.Session{}, err
	}
	if _, ok := item["appointmentDate"]; ok {
		t, err := timeFromAttr(item, "appointmentDate")
		if err != nil {
			return domain.Session{}, err
		}
		s.AppointmentDate = &t
	}
	if _, ok := item["followUpDate"]; ok {
		t, err := timeFromAttr(item, "followUpDate")
		if err != nil {
			return domain.Session{}, err
		}
		s.FollowUpDate = &t
	}
	if _, ok := item["satisfactionScore"]; ok {
		n, err := intAttr(item, "satisfactionScore")
		if err != nil {
			return domain.Session{}, err
		}
		s.SatisfactionScore = &n
	}
	if _, ok := item["satisfactionFeedback"]; ok {
		f, err := strAttr(item, "satisfactionFeedback")
		if err != nil {
			return domain.Session{}, err
		}
		s.SatisfactionFeedback = &f
	}
	return s, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	var (
		m   domain.Message
		err error
	)
	if m.ID, err = strAttr(item, "id"); err != nil {
		return domain.Message{}, err
	}
	if m.SessionID, err = strAttr(item, "sessionId"); err != nil {
		return domain.Message{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	m.Role = domain.Role(role)
	if m.CreatedAt, err = timeFromAttr(item, "createdAt"); err != nil {
		return domain.Message{}, err
	}
	m.Content, _ = strAttr(item, "content")
	return m, nil
}

func conversationFromAttr(item map[string]types.AttributeValue) ([]domain.ConversationEntry, error) {
	v, ok := item["conversation"]
	if !ok {
		return []domain.ConversationEntry{}, nil
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, errors.New(`repository: attribute "conversation" is not a list`)
	}
	out := make([]domain.ConversationEntry, 0, len(list.Value))
	for i, raw := range list.Value {
		m, ok := raw.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: conversation[%d] is not a map", i)
		}
		role, err := strAttr(m.Value, "role")
		if err != nil {
			return nil, fmt.Errorf("repository: conversation[%d]: %w", i, err)
		}
		content, _ := strAttr(m.Value, "content")
		ts, err := timeFromAttr(m.Value, "timestamp")
		if err != nil {
			return nil, fmt.Errorf("repository: conversation[%d]: %w", i, err)
		}
		out = append(out, domain.ConversationEntry{Role: domain.Role(role), Content: content, Timestamp: ts})
	}
	return out, nil
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func timeFromAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
