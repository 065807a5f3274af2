package postgres

import (
	"strconv"
	"strings"

	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/internal/wire"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// columnDesc is one column of a RowDescription.
type columnDesc struct {
	name   string
	oid    uint32
	format int16 // 0 = text, 1 = binary
}

// Query runs sql, using the simple query protocol when there are no
// params and the extended protocol (Parse/Describe/Bind/Execute/Sync)
// otherwise, since PostgreSQL's simple protocol carries no bind
// parameters at all.
func (pc *Conn) Query(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[[]sqlval.Row] {
	if c.Cancelled() {
		return cx.Cancelled[[]sqlval.Row](c.Err().Error())
	}
	res, err := pc.run(sql, params)
	if err != nil {
		return cx.Err[[]sqlval.Row](err)
	}
	return cx.Ok(res.rows)
}

// QueryOne runs sql and returns the single row, or nil if the result
// set was empty. It does not itself enforce "exactly one"; that's
// the query builder's One() contract; this layer only reports what
// the server sent.
func (pc *Conn) QueryOne(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[*sqlval.Row] {
	out := pc.Query(c, sql, params)
	switch out.State() {
	case cx.StateOk:
		rows, _ := out.Value()
		if len(rows) == 0 {
			return cx.Ok[*sqlval.Row](nil)
		}
		row := rows[0]
		return cx.Ok(&row)
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[*sqlval.Row](reason)
	default:
		err, _ := out.Error()
		return cx.Err[*sqlval.Row](err)
	}
}

func (pc *Conn) Execute(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	res, err := pc.run(sql, params)
	if err != nil {
		return cx.Err[int64](err)
	}
	return cx.Ok(res.rowsAffected)
}

// Insert executes sql and returns the first column of the first
// returned row as an int64 if the statement produced one (i.e. the
// query builder appended RETURNING), else 0; PostgreSQL has no
// protocol-level "last insert id" the way MySQL/SQLite do, per spec
// §4.4's "semantics driver-specific" note.
func (pc *Conn) Insert(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	res, err := pc.run(sql, params)
	if err != nil {
		return cx.Err[int64](err)
	}
	if len(res.rows) == 0 {
		return cx.Ok(int64(0))
	}
	v, convErr := res.rows[0].Get(0)
	if convErr != nil {
		return cx.Ok(int64(0))
	}
	n, ok := v.AsInt64()
	if !ok {
		return cx.Ok(int64(0))
	}
	return cx.Ok(n)
}

// run dispatches to the simple or extended protocol and returns the
// decoded result.
func (pc *Conn) run(sql string, params []sqlval.Value) (rowsResult, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if len(params) == 0 {
		return pc.simpleQuery(sql)
	}
	return pc.extendedQuery("", true, sql, params)
}

func (pc *Conn) simpleQuery(sql string) (rowsResult, error) {
	if _, err := pc.netConn.Write(queryMessage(sql)); err != nil {
		return rowsResult{}, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Query", err)
	}

	var cols []columnDesc
	var rows []sqlval.Row
	var affected int64
	var pendingErr error

	for {
		msg, err := readBackendMessage(pc.r, pc.maxMsg)
		if err != nil {
			return rowsResult{}, dberr.Wrap(dberr.KindProtocol, "postgres: read simple query response", err)
		}
		switch msg.tag {
		case backendRowDescription:
			cols = decodeRowDescription(msg.body)
		case backendDataRow:
			row, err := decodeDataRow(cols, msg.body)
			if err != nil {
				pendingErr = err
				continue
			}
			rows = append(rows, row)
		case backendCommandComplete:
			affected = parseCommandTag(string(msg.body))
		case backendEmptyQueryResp:
		case backendErrorResponse:
			fields := parseErrorFields(msg.body)
			pendingErr = dberr.FromPostgresSQLSTATE(fields['C'], fields['M'])
		case backendNoticeResponse:
		case backendReadyForQuery:
			if len(msg.body) > 0 {
				pc.txStatus = msg.body[0]
			}
			if pendingErr != nil {
				return rowsResult{}, pendingErr
			}
			return rowsResult{rows: rows, rowsAffected: affected}, nil
		default:
			return rowsResult{}, dberr.New(dberr.KindProtocol, "postgres: unexpected message during simple query")
		}
	}
}

// extendedQuery runs one Describe/Bind/Execute/Sync round trip against
// a statement, optionally preceded by Parse when parse is true (ad-hoc
// queries parse the unnamed statement fresh each call; a Stmt obtained
// from Prepare already parsed its name once and passes parse=false).
// Describe is issued right after Parse so the column OIDs are known
// before Bind chooses per-column result format codes: picking
// binary-vs-text per column requires the RowDescription first.
func (pc *Conn) extendedQuery(stmtName string, parse bool, sql string, params []sqlval.Value) (rowsResult, error) {
	b := pc.netConn

	if parse {
		if _, err := b.Write(frontendParse(stmtName, sql, nil)); err != nil {
			return rowsResult{}, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Parse", err)
		}
	}
	if _, err := b.Write(frontendDescribe('S', stmtName)); err != nil {
		return rowsResult{}, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Describe", err)
	}
	if _, err := b.Write(syncMessage()); err != nil {
		return rowsResult{}, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Sync", err)
	}

	var cols []columnDesc
	var describeErr error
describeLoop:
	for {
		msg, err := readBackendMessage(pc.r, pc.maxMsg)
		if err != nil {
			return rowsResult{}, dberr.Wrap(dberr.KindProtocol, "postgres: read Describe response", err)
		}
		switch msg.tag {
		case backendParseComplete:
		case backendParameterDesc:
		case backendRowDescription:
			cols = decodeRowDescription(msg.body)
		case backendNoData:
		case backendErrorResponse:
			fields := parseErrorFields(msg.body)
			describeErr = dberr.FromPostgresSQLSTATE(fields['C'], fields['M'])
		case backendReadyForQuery:
			if len(msg.body) > 0 {
				pc.txStatus = msg.body[0]
			}
			break describeLoop
		}
	}
	if describeErr != nil {
		return rowsResult{}, describeErr
	}

	resultFormats := make([]int16, len(cols))
	for i, col := range cols {
		if supportsBinary(col.oid) {
			resultFormats[i] = 1
		}
	}

	paramBytes := make([][]byte, len(params))
	paramIsNull := make([]bool, len(params))
	for i, p := range params {
		isNull, text, err := encodeParamText(p)
		if err != nil {
			return rowsResult{}, dberr.Wrap(dberr.KindQueryTypeMismatch, "postgres: encode parameter", err)
		}
		paramIsNull[i] = isNull
		paramBytes[i] = []byte(text)
	}

	if _, err := b.Write(frontendBind("", stmtName, paramIsNull, paramBytes, resultFormats)); err != nil {
		return rowsResult{}, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Bind", err)
	}
	if _, err := b.Write(frontendExecute("", 0)); err != nil {
		return rowsResult{}, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Execute", err)
	}
	if _, err := b.Write(syncMessage()); err != nil {
		return rowsResult{}, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Sync", err)
	}

	var rows []sqlval.Row
	var affected int64
	var pendingErr error
	for {
		msg, err := readBackendMessage(pc.r, pc.maxMsg)
		if err != nil {
			return rowsResult{}, dberr.Wrap(dberr.KindProtocol, "postgres: read Bind/Execute response", err)
		}
		switch msg.tag {
		case backendBindComplete:
		case backendDataRow:
			row, err := decodeExtendedDataRow(cols, resultFormats, msg.body)
			if err != nil {
				pendingErr = err
				continue
			}
			rows = append(rows, row)
		case backendCommandComplete:
			affected = parseCommandTag(string(msg.body))
		case backendEmptyQueryResp:
		case backendPortalSuspended:
		case backendErrorResponse:
			fields := parseErrorFields(msg.body)
			pendingErr = dberr.FromPostgresSQLSTATE(fields['C'], fields['M'])
		case backendReadyForQuery:
			if len(msg.body) > 0 {
				pc.txStatus = msg.body[0]
			}
			if pendingErr != nil {
				return rowsResult{}, pendingErr
			}
			return rowsResult{rows: rows, rowsAffected: affected}, nil
		}
	}
}

func decodeRowDescription(body []byte) []columnDesc {
	if len(body) < 2 {
		return nil
	}
	n := int(beUint16(body[0:2]))
	cols := make([]columnDesc, 0, n)
	off := 2
	for i := 0; i < n; i++ {
		nameEnd := off
		for nameEnd < len(body) && body[nameEnd] != 0 {
			nameEnd++
		}
		name := string(body[off:nameEnd])
		off = nameEnd + 1
		// tableOID(4) attnum(2) typeOID(4) typelen(2) typmod(4) format(2)
		if off+18 > len(body) {
			break
		}
		typeOID := beUint32(body[off+4 : off+8])
		format := int16(beUint16(body[off+16 : off+18]))
		off += 18
		cols = append(cols, columnDesc{name: name, oid: typeOID, format: format})
	}
	return cols
}

func decodeDataRow(cols []columnDesc, body []byte) (sqlval.Row, error) {
	if len(body) < 2 {
		return sqlval.Row{}, dberr.New(dberr.KindProtocol, "postgres: short DataRow")
	}
	n := int(beUint16(body[0:2]))
	names := make([]string, n)
	values := make([]sqlval.Value, n)
	off := 2
	for i := 0; i < n; i++ {
		if off+4 > len(body) {
			return sqlval.Row{}, dberr.New(dberr.KindProtocol, "postgres: truncated DataRow")
		}
		length := int32(beUint32(body[off : off+4]))
		off += 4
		var oid uint32
		name := ""
		if i < len(cols) {
			oid = cols[i].oid
			name = cols[i].name
		}
		names[i] = name
		if length < 0 {
			values[i] = sqlval.Null()
			continue
		}
		raw := body[off : off+int(length)]
		off += int(length)
		v, err := decodeText(oid, raw, false)
		if err != nil {
			return sqlval.Row{}, err
		}
		values[i] = v
	}
	return sqlval.NewRow(names, values), nil
}

func decodeExtendedDataRow(cols []columnDesc, formats []int16, body []byte) (sqlval.Row, error) {
	if len(body) < 2 {
		return sqlval.Row{}, dberr.New(dberr.KindProtocol, "postgres: short DataRow")
	}
	n := int(beUint16(body[0:2]))
	names := make([]string, n)
	values := make([]sqlval.Value, n)
	off := 2
	for i := 0; i < n; i++ {
		if off+4 > len(body) {
			return sqlval.Row{}, dberr.New(dberr.KindProtocol, "postgres: truncated DataRow")
		}
		length := int32(beUint32(body[off : off+4]))
		off += 4
		var oid uint32
		var format int16
		name := ""
		if i < len(cols) {
			oid = cols[i].oid
			name = cols[i].name
		}
		if i < len(formats) {
			format = formats[i]
		}
		names[i] = name
		if length < 0 {
			values[i] = sqlval.Null()
			continue
		}
		raw := body[off : off+int(length)]
		off += int(length)
		var v sqlval.Value
		var err error
		if format == 1 {
			v, err = decodeBinary(oid, raw, false)
		} else {
			v, err = decodeText(oid, raw, false)
		}
		if err != nil {
			return sqlval.Row{}, err
		}
		values[i] = v
	}
	return sqlval.NewRow(names, values), nil
}

// parseCommandTag extracts the trailing row count from a
// CommandComplete tag like "INSERT 0 1", "UPDATE 3", "SELECT 5",
// "DELETE 1".
func parseCommandTag(tag string) int64 {
	tag = strings.TrimRight(tag, "\x00")
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

func frontendParse(name, sql string, paramOIDs []uint32) []byte {
	b := wire.NewBuilder()
	b.WriteCString(name)
	b.WriteCString(sql)
	b.WriteUint16BE(uint16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		b.WriteUint32BE(oid)
	}
	return frontendMessage('P', b.Bytes())
}

func frontendDescribe(kind byte, name string) []byte {
	b := wire.NewBuilder()
	b.WriteByte(kind)
	b.WriteCString(name)
	return frontendMessage('D', b.Bytes())
}

func frontendBind(portal, stmt string, paramIsNull []bool, paramBytes [][]byte, resultFormats []int16) []byte {
	b := wire.NewBuilder()
	b.WriteCString(portal)
	b.WriteCString(stmt)
	b.WriteUint16BE(1) // one param format code applies to all params
	b.WriteUint16BE(0) // text format
	b.WriteUint16BE(uint16(len(paramBytes)))
	for i, pb := range paramBytes {
		if paramIsNull[i] {
			b.WriteUint32BE(0xFFFFFFFF) // -1 as uint32, the NULL length sentinel
			continue
		}
		b.WriteUint32BE(uint32(len(pb)))
		b.WriteBytes(pb)
	}
	b.WriteUint16BE(uint16(len(resultFormats)))
	for _, f := range resultFormats {
		b.WriteUint16BE(uint16(f))
	}
	return frontendMessage('B', b.Bytes())
}

func frontendExecute(portal string, maxRows uint32) []byte {
	b := wire.NewBuilder()
	b.WriteCString(portal)
	b.WriteUint32BE(maxRows)
	return frontendMessage('E', b.Bytes())
}

func frontendCloseStatement(name string) []byte {
	b := wire.NewBuilder()
	b.WriteByte('S')
	b.WriteCString(name)
	return frontendMessage('C', b.Bytes())
}
