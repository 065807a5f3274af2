package mysql

import (
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/internal/wire"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

const (
	comQuit        = 0x01
	comQuery       = 0x03
	comPing        = 0x0e
	comStmtPrepare = 0x16
	comStmtExecute = 0x17
	comStmtClose   = 0x19
)

type queryResult struct {
	rows         []sqlval.Row
	rowsAffected int64
	lastInsertID int64
}

// Query runs sql with no params over COM_QUERY, or; when params is
// non-empty; prepares and executes a one-shot binary statement, since
// COM_QUERY carries no bind parameters at all (MySQL's "?" placeholder
// support is entirely a property of the prepared-statement protocol).
func (mc *Conn) Query(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[[]sqlval.Row] {
	if c.Cancelled() {
		return cx.Cancelled[[]sqlval.Row](c.Err().Error())
	}
	res, err := mc.run(sql, params)
	if err != nil {
		return cx.Err[[]sqlval.Row](err)
	}
	return cx.Ok(res.rows)
}

func (mc *Conn) QueryOne(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[*sqlval.Row] {
	out := mc.Query(c, sql, params)
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

func (mc *Conn) Execute(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	res, err := mc.run(sql, params)
	if err != nil {
		return cx.Err[int64](err)
	}
	return cx.Ok(res.rowsAffected)
}

// Insert executes sql and returns the server-reported
// last_insert_id(), the native MySQL mechanism for surfacing an
// AUTO_INCREMENT value.
func (mc *Conn) Insert(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	res, err := mc.run(sql, params)
	if err != nil {
		return cx.Err[int64](err)
	}
	return cx.Ok(res.lastInsertID)
}

func (mc *Conn) run(sql string, params []sqlval.Value) (queryResult, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(params) == 0 {
		return mc.comQuery(sql)
	}
	return mc.oneShotPrepared(sql, params)
}

// comQuery issues a text-protocol query and decodes its result set (or
// OK packet for a non-SELECT statement).
func (mc *Conn) comQuery(sql string) (queryResult, error) {
	mc.pc.resetSeq()
	payload := append([]byte{comQuery}, []byte(sql)...)
	if err := mc.pc.writePacket(payload); err != nil {
		return queryResult{}, err
	}
	return mc.readTextResultSet()
}

func (mc *Conn) readTextResultSet() (queryResult, error) {
	pkt, err := mc.pc.readPacket()
	if err != nil {
		return queryResult{}, dberr.Wrap(dberr.KindProtocol, "mysql: read query response", err)
	}
	if len(pkt) == 0 {
		return queryResult{}, dberr.New(dberr.KindProtocol, "mysql: empty query response")
	}
	switch pkt[0] {
	case packetOK:
		ok, err := parseOK(pkt)
		if err != nil {
			return queryResult{}, err
		}
		mc.statusFlags = ok.statusFlags
		return queryResult{rowsAffected: int64(ok.affectedRows), lastInsertID: int64(ok.lastInsertID)}, nil
	case packetErr:
		e, err := parseErr(pkt)
		if err != nil {
			return queryResult{}, err
		}
		return queryResult{}, e
	}

	r := newByteReader(pkt)
	colCount, err := r.readLenEncInt()
	if err != nil {
		return queryResult{}, err
	}

	cols := make([]columnDef, 0, colCount)
	for i := uint64(0); i < colCount; i++ {
		cpkt, err := mc.pc.readPacket()
		if err != nil {
			return queryResult{}, err
		}
		col, err := parseColumnDef41(cpkt)
		if err != nil {
			return queryResult{}, err
		}
		cols = append(cols, col)
	}

	if mc.capabilities&capDeprecateEOF == 0 {
		if _, err := mc.pc.readPacket(); err != nil { // EOF after column defs
			return queryResult{}, err
		}
	}

	var rows []sqlval.Row
	for {
		rpkt, err := mc.pc.readPacket()
		if err != nil {
			return queryResult{}, err
		}
		if len(rpkt) == 0 {
			continue
		}
		if rpkt[0] == packetErr {
			e, err := parseErr(rpkt)
			if err != nil {
				return queryResult{}, err
			}
			return queryResult{}, e
		}
		if isEOFOrOK(rpkt, mc.capabilities) {
			break
		}
		row, err := decodeTextRow(cols, rpkt)
		if err != nil {
			return queryResult{}, err
		}
		rows = append(rows, row)
	}
	return queryResult{rows: rows}, nil
}

// isEOFOrOK reports whether pkt terminates a result set. Both framings
// lead with 0xFE: a legacy EOF packet (body < 9 bytes) when
// CLIENT_DEPRECATE_EOF is off, or an OK packet carried under the 0xFE
// header when it's on. A data row can never start with 0xFE, since a
// length-encoded integer/string would spell that byte only for a
// 8-byte-length prefix, which no first column of a row produces under
// 16 MB packets.
func isEOFOrOK(pkt []byte, capabilities uint32) bool {
	if len(pkt) == 0 || pkt[0] != packetEOF {
		return false
	}
	if capabilities&capDeprecateEOF != 0 {
		return len(pkt) < maxPacketPayload
	}
	return len(pkt) < 9
}

func decodeTextRow(cols []columnDef, pkt []byte) (sqlval.Row, error) {
	r := newByteReader(pkt)
	names := make([]string, len(cols))
	values := make([]sqlval.Value, len(cols))
	for i, col := range cols {
		names[i] = col.name
		str, isNull, err := r.readLenEncStringOrNull()
		if err != nil {
			return sqlval.Row{}, err
		}
		v, err := decodeTextValue(col, str, isNull)
		if err != nil {
			return sqlval.Row{}, err
		}
		values[i] = v
	}
	return sqlval.NewRow(names, values), nil
}

// oneShotPrepared prepares sql, executes it once with params via the
// binary protocol, and closes the statement; used for ad-hoc
// parameterised Query/Execute/Insert calls that don't go through
// Prepare.
func (mc *Conn) oneShotPrepared(sql string, params []sqlval.Value) (queryResult, error) {
	stmt, err := mc.prepareLocked(sql)
	if err != nil {
		return queryResult{}, err
	}
	defer mc.closeStmtLocked(stmt.id)
	return mc.executeStmtLocked(stmt, params)
}

type preparedInfo struct {
	id         uint32
	numParams  uint16
	numColumns uint16
	columns    []columnDef
}

func (mc *Conn) prepareLocked(sql string) (preparedInfo, error) {
	mc.pc.resetSeq()
	payload := append([]byte{comStmtPrepare}, []byte(sql)...)
	if err := mc.pc.writePacket(payload); err != nil {
		return preparedInfo{}, err
	}
	pkt, err := mc.pc.readPacket()
	if err != nil {
		return preparedInfo{}, err
	}
	if len(pkt) == 0 {
		return preparedInfo{}, dberr.New(dberr.KindProtocol, "mysql: empty prepare response")
	}
	if pkt[0] == packetErr {
		e, err := parseErr(pkt)
		if err != nil {
			return preparedInfo{}, err
		}
		return preparedInfo{}, e
	}
	r := newByteReader(pkt[1:])
	stmtID, err := r.readUint32LE()
	if err != nil {
		return preparedInfo{}, err
	}
	numColumns, err := r.readUint16LE()
	if err != nil {
		return preparedInfo{}, err
	}
	numParams, err := r.readUint16LE()
	if err != nil {
		return preparedInfo{}, err
	}

	info := preparedInfo{id: stmtID, numParams: numParams, numColumns: numColumns}

	if numParams > 0 {
		for i := uint16(0); i < numParams; i++ {
			if _, err := mc.pc.readPacket(); err != nil { // param definitions
				return preparedInfo{}, err
			}
		}
		if mc.capabilities&capDeprecateEOF == 0 {
			if _, err := mc.pc.readPacket(); err != nil {
				return preparedInfo{}, err
			}
		}
	}
	if numColumns > 0 {
		cols := make([]columnDef, 0, numColumns)
		for i := uint16(0); i < numColumns; i++ {
			cpkt, err := mc.pc.readPacket()
			if err != nil {
				return preparedInfo{}, err
			}
			col, err := parseColumnDef41(cpkt)
			if err != nil {
				return preparedInfo{}, err
			}
			cols = append(cols, col)
		}
		if mc.capabilities&capDeprecateEOF == 0 {
			if _, err := mc.pc.readPacket(); err != nil {
				return preparedInfo{}, err
			}
		}
		info.columns = cols
	}
	return info, nil
}

func (mc *Conn) closeStmtLocked(id uint32) {
	mc.pc.resetSeq()
	payload := wire.NewBuilder()
	payload.WriteByte(comStmtClose)
	payload.WriteByte(byte(id))
	payload.WriteByte(byte(id >> 8))
	payload.WriteByte(byte(id >> 16))
	payload.WriteByte(byte(id >> 24))
	mc.pc.writePacket(payload.Bytes()) // COM_STMT_CLOSE has no response
}

// executeStmtLocked sends COM_STMT_EXECUTE for an already-prepared
// statement and decodes the binary result set (or OK packet).
func (mc *Conn) executeStmtLocked(stmt preparedInfo, params []sqlval.Value) (queryResult, error) {
	mc.pc.resetSeq()
	if err := mc.pc.writePacket(buildExecutePacket(stmt, params)); err != nil {
		return queryResult{}, err
	}

	pkt, err := mc.pc.readPacket()
	if err != nil {
		return queryResult{}, dberr.Wrap(dberr.KindProtocol, "mysql: read execute response", err)
	}
	if len(pkt) == 0 {
		return queryResult{}, dberr.New(dberr.KindProtocol, "mysql: empty execute response")
	}
	switch pkt[0] {
	case packetOK:
		ok, err := parseOK(pkt)
		if err != nil {
			return queryResult{}, err
		}
		mc.statusFlags = ok.statusFlags
		return queryResult{rowsAffected: int64(ok.affectedRows), lastInsertID: int64(ok.lastInsertID)}, nil
	case packetErr:
		e, err := parseErr(pkt)
		if err != nil {
			return queryResult{}, err
		}
		return queryResult{}, e
	}

	r := newByteReader(pkt)
	colCount, err := r.readLenEncInt()
	if err != nil {
		return queryResult{}, err
	}
	cols := stmt.columns
	if uint64(len(cols)) != colCount {
		cols = make([]columnDef, 0, colCount)
		for i := uint64(0); i < colCount; i++ {
			cpkt, err := mc.pc.readPacket()
			if err != nil {
				return queryResult{}, err
			}
			col, err := parseColumnDef41(cpkt)
			if err != nil {
				return queryResult{}, err
			}
			cols = append(cols, col)
		}
	} else {
		for range cols {
			if _, err := mc.pc.readPacket(); err != nil {
				return queryResult{}, err
			}
		}
	}
	if mc.capabilities&capDeprecateEOF == 0 {
		if _, err := mc.pc.readPacket(); err != nil {
			return queryResult{}, err
		}
	}

	var rows []sqlval.Row
	for {
		rpkt, err := mc.pc.readPacket()
		if err != nil {
			return queryResult{}, err
		}
		if isEOFOrOK(rpkt, mc.capabilities) {
			break
		}
		if len(rpkt) > 0 && rpkt[0] == packetErr {
			e, err := parseErr(rpkt)
			if err != nil {
				return queryResult{}, err
			}
			return queryResult{}, e
		}
		row, err := decodeBinaryRow(cols, rpkt)
		if err != nil {
			return queryResult{}, err
		}
		rows = append(rows, row)
	}
	return queryResult{rows: rows}, nil
}

// decodeBinaryRow decodes a Binary Protocol Resultset Row: a leading
// 0x00 header byte, a NULL bitmap (offset by 2 bits per the protocol),
// then each non-NULL column's binary value in order.
func decodeBinaryRow(cols []columnDef, pkt []byte) (sqlval.Row, error) {
	if len(pkt) < 1 {
		return sqlval.Row{}, dberr.New(dberr.KindProtocol, "mysql: empty binary row")
	}
	bitmapLen := (len(cols) + 7 + 2) / 8
	if len(pkt) < 1+bitmapLen {
		return sqlval.Row{}, dberr.New(dberr.KindProtocol, "mysql: truncated binary row NULL bitmap")
	}
	bitmap := pkt[1 : 1+bitmapLen]
	r := newByteReader(pkt[1+bitmapLen:])

	names := make([]string, len(cols))
	values := make([]sqlval.Value, len(cols))
	for i, col := range cols {
		names[i] = col.name
		bytePos := (i + 2) / 8
		bitPos := uint((i + 2) % 8)
		isNull := bitmap[bytePos]&(1<<bitPos) != 0
		if isNull {
			values[i] = sqlval.Null()
			continue
		}
		v, err := decodeBinaryValue(col, r)
		if err != nil {
			return sqlval.Row{}, err
		}
		values[i] = v
	}
	return sqlval.NewRow(names, values), nil
}

// buildExecutePacket renders a COM_STMT_EXECUTE payload: statement id,
// cursor flags (always 0, no cursor support), iteration count (always
// 1), a NULL bitmap, a new-params-bound-flag byte, then each
// parameter's type code and binary value, per the protocol.
func buildExecutePacket(stmt preparedInfo, params []sqlval.Value) []byte {
	b := wire.NewBuilder()
	b.WriteByte(comStmtExecute)
	b.WriteByte(byte(stmt.id))
	b.WriteByte(byte(stmt.id >> 8))
	b.WriteByte(byte(stmt.id >> 16))
	b.WriteByte(byte(stmt.id >> 24))
	b.WriteByte(0) // CURSOR_TYPE_NO_CURSOR
	b.WriteByte(1)
	b.WriteByte(0)
	b.WriteByte(0)
	b.WriteByte(0)

	if len(params) > 0 {
		bitmapLen := (len(params) + 7) / 8
		bitmap := make([]byte, bitmapLen)
		types := make([]byte, 0, len(params)*2)
		var values []byte
		for i, p := range params {
			typeByte, payload, _ := encodeBinaryParam(p)
			if p.IsNull() {
				bitmap[i/8] |= 1 << uint(i%8)
			}
			types = append(types, typeByte, 0)
			values = append(values, payload...)
		}
		b.WriteBytes(bitmap)
		b.WriteByte(1) // new-params-bound-flag
		b.WriteBytes(types)
		b.WriteBytes(values)
	}
	return b.Bytes()
}
