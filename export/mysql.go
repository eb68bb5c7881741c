package export

const mysqlCreateTableTmpl = "CREATE TABLE IF NOT EXISTS captures (" +
	"`ID`         VARCHAR(36) NOT NULL PRIMARY KEY," +
	"`Success`    BOOLEAN NOT NULL," +
	"`Error`      TEXT," +
	"`StartFreq`  DOUBLE," +
	"`EndFreq`    DOUBLE," +
	"`FFTSize`    INTEGER," +
	"`SampleRate` DOUBLE," +
	"`Timestamp`  BIGINT," +
	"`Bins`       INTEGER," +
	"`DBLow`      DOUBLE," +
	"`DBHigh`     DOUBLE," +
	"`DBAvg`      DOUBLE," +
	"`Magnitudes` MEDIUMTEXT" +
	");"
