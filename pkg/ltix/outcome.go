package ltix

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

// OutcomesNamespace is the IMS POX namespace for LTI 1.1 Basic Outcomes.
const OutcomesNamespace = "http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0"

// ContentType is sent with every outcome request.
const ContentType = "application/xml"

type poxRequest struct {
	XMLName   xml.Name `xml:"http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0 imsx_POXEnvelopeRequest"`
	Version   string   `xml:"imsx_POXHeader>imsx_POXRequestHeaderInfo>imsx_version"`
	MessageID string   `xml:"imsx_POXHeader>imsx_POXRequestHeaderInfo>imsx_messageIdentifier"`
	Record    struct {
		SourcedID string `xml:"sourcedGUID>sourcedId"`
		Language  string `xml:"result>resultScore>language"`
		Score     string `xml:"result>resultScore>textString"`
	} `xml:"imsx_POXBody>replaceResultRequest>resultRecord"`
}

// NewReplaceResultRequest renders the replaceResultRequest envelope that
// sets the result for sourcedID to score, formatted with four decimals.
// The sourcedID is escaped, so LMS-supplied identifiers cannot alter the
// document structure.
func NewReplaceResultRequest(messageID, sourcedID string, score float64) ([]byte, error) {
	req := poxRequest{
		Version:   "V1.0",
		MessageID: messageID,
	}
	req.Record.SourcedID = sourcedID
	req.Record.Language = "en"
	req.Record.Score = FormatScore(score)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("ltix: encode replaceResultRequest: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatScore renders a normalized score the way outcome services expect.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 4, 64)
}

// OutcomeResponse is the subset of imsx_POXEnvelopeResponse worth logging.
type OutcomeResponse struct {
	CodeMajor   string `xml:"imsx_POXHeader>imsx_POXResponseHeaderInfo>imsx_statusInfo>imsx_codeMajor"`
	Severity    string `xml:"imsx_POXHeader>imsx_POXResponseHeaderInfo>imsx_statusInfo>imsx_severity"`
	Description string `xml:"imsx_POXHeader>imsx_POXResponseHeaderInfo>imsx_statusInfo>imsx_description"`
}

// ParseOutcomeResponse decodes an outcome service reply. Consumers that
// answer with something other than POX yield an error.
func ParseOutcomeResponse(body []byte) (OutcomeResponse, error) {
	var resp OutcomeResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return OutcomeResponse{}, fmt.Errorf("ltix: decode outcome response: %w", err)
	}
	return resp, nil
}
